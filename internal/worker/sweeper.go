package worker

import (
	"context"
	"time"

	"github.com/thumbsmith/thumbsmith/internal/config"
	"github.com/thumbsmith/thumbsmith/internal/export"
)

// RunSweeper periodically deletes stale files from the temp and output
// directories. Temp files only outlive a crash mid-export, so they get a
// short retention; finished exports stay long enough for clients to fetch
// them. Blocks until ctx is cancelled.
func (s *Server) RunSweeper(ctx context.Context, workerCfg config.WorkerConfig, exportCfg config.ExportConfig) {
	targets := []struct {
		role   string
		dir    string
		maxAge time.Duration
	}{
		{role: "temp", dir: exportCfg.TempDir, maxAge: workerCfg.TempMaxAge},
		{role: "output", dir: exportCfg.OutputDir, maxAge: workerCfg.OutputMaxAge},
	}

	ticker := time.NewTicker(workerCfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, target := range targets {
			deleted, err := export.Sweep(target.dir, target.maxAge, s.logger)
			if err != nil {
				s.logger.Printf("sweep %s dir=%s failed: %v", target.role, target.dir, err)
				continue
			}
			if deleted > 0 {
				s.logger.Printf("sweep %s dir=%s removed=%d", target.role, target.dir, deleted)
			}
			s.metrics.sweptFilesTotal.WithLabelValues(target.role).Add(float64(deleted))
		}
	}
}
