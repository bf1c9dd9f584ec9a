//go:build linux

package filesystem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/options"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/types"

	"github.com/sourcegraph/conc/pool"
)

// BatchOps runs independent copy/remove operations concurrently. Each
// individual operation stays a synchronous single-threaded call; only
// unrelated roots run in parallel.
type BatchOps struct {
	engine     *Engine
	maxWorkers int
}

// NewBatchOps creates a new batch operations instance
func NewBatchOps(engine *Engine, maxWorkers int) *BatchOps {
	if maxWorkers <= 0 {
		maxWorkers = 4 // Default to 4 workers
	}
	return &BatchOps{
		engine:     engine,
		maxWorkers: maxWorkers,
	}
}

// CopyBatch copies every source/destination pair, collecting per-pair
// failures instead of failing fast across pairs.
func (bo *BatchOps) CopyBatch(ctx context.Context, requests []types.CopyRequest, opts options.CopyOptions) (*types.BatchResult, error) {
	start := time.Now()

	result := &types.BatchResult{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(bo.maxWorkers).WithContext(ctx)
	for i, req := range requests {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := bo.engine.Copy(req.Source, req.Destination, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Errorf("request %d failed: %w", i, err))
				slog.Error("Batch copy operation failed",
					"index", i, "src", req.Source, "dst", req.Destination, "error", err)
				return nil
			}
			result.Processed++
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	result.Success = result.Failed == 0

	slog.Info("Batch copy operations completed",
		"total", len(requests),
		"successful", result.Processed,
		"failed", result.Failed,
		"duration", result.Duration)

	return result, nil
}

// RemoveBatch removes every path, collecting per-path failures instead
// of failing fast across paths.
func (bo *BatchOps) RemoveBatch(ctx context.Context, paths []string, opts options.RemoveOptions) (*types.BatchResult, error) {
	start := time.Now()

	result := &types.BatchResult{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(bo.maxWorkers).WithContext(ctx)
	for i, path := range paths {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := bo.engine.Remove(path, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Errorf("path %d failed: %w", i, err))
				slog.Error("Batch remove operation failed", "index", i, "path", path, "error", err)
				return nil
			}
			result.Processed++
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	result.Success = result.Failed == 0

	slog.Info("Batch remove operations completed",
		"total", len(paths),
		"successful", result.Processed,
		"failed", result.Failed,
		"duration", result.Duration)

	return result, nil
}
