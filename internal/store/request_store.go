package store

import (
	"context"

	"github.com/thumbsmith/thumbsmith/internal/domain"
)

type RequestStore interface {
	Create(ctx context.Context, req domain.Request) error
	Get(ctx context.Context, id string) (domain.Request, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Request, error)
	// SetResult records the terminal outcome of a request in one write:
	// status, the variations that survived, and the error message when
	// every variation failed.
	SetResult(ctx context.Context, id, status string, variations []domain.Variation, errMsg string) (domain.Request, error)
}
