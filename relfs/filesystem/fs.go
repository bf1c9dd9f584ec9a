//go:build linux

package filesystem

import (
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/relfs/relfs/config"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/common"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/interfaces"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/options"

	"github.com/ZanzyTHEbar/assert-lib"
)

// Engine is the entry point for traversal, copy and remove operations,
// carrying the engine configuration and rolling metrics. The underlying
// operations are synchronous, single-threaded algorithms on the caller's
// goroutine; the race resistance is against other processes mutating the
// shared filesystem, achieved through fd-relative syscalls.
type Engine struct {
	config        config.EngineConfig
	assertHandler *assert.AssertHandler
	metrics       *common.EngineMetrics
	batchOps      *BatchOps
}

// New creates an engine from the given configuration; pass nil for the
// defaults.
func New(cfg *config.EngineConfig) (*Engine, error) {
	engineCfg := config.DefaultEngineConfig()
	if cfg != nil {
		engineCfg = *cfg
	}
	if engineCfg.CopyBufferSize <= 0 {
		engineCfg.CopyBufferSize = defaultCopyBufferSize
	}

	// Create assert handler for internal invariant checks
	assertHandler := assert.NewAssertHandler()

	e := &Engine{
		config:        engineCfg,
		assertHandler: assertHandler,
		metrics:       &common.EngineMetrics{},
	}
	e.batchOps = NewBatchOps(e, engineCfg.BatchWorkers)
	return e, nil
}

// Visit walks path with the engine's verbosity applied.
func (e *Engine) Visit(path string, opts options.VisitOptions, visitor Visitor) error {
	start := time.Now()
	opts.Verbose = opts.Verbose || e.config.Verbose

	err := Visit(path, opts, visitor)
	e.metrics.UpdateMetrics(start, err == nil, 0)
	return err
}

// Copy copies src to dst with the engine's verbosity applied.
func (e *Engine) Copy(src, dst string, opts options.CopyOptions) error {
	start := time.Now()
	opts.Verbose = opts.Verbose || e.config.Verbose

	err := Copy(src, dst, opts)
	e.metrics.UpdateMetrics(start, err == nil, 0)
	if err != nil {
		return err
	}

	slog.Debug("Copy completed", "src", src, "dst", dst, "duration", time.Since(start))
	return nil
}

// Remove removes path with the engine's verbosity applied.
func (e *Engine) Remove(path string, opts options.RemoveOptions) error {
	start := time.Now()
	opts.Verbose = opts.Verbose || e.config.Verbose

	err := Remove(path, opts)
	e.metrics.UpdateMetrics(start, err == nil, 0)
	return err
}

// CountEntries walks path and returns the number of regular-file and
// directory entries seen, including the root directory itself.
func (e *Engine) CountEntries(path string) (files, dirs int, err error) {
	opts := options.VisitOptions{
		Recursive: true,
		DirEntry:  true,
	}
	err = e.Visit(path, opts, func(event VisitEvent, s *EntryStats, depth int) bool {
		switch {
		case event.Has(EventDirEntry):
			dirs++
		case event.Has(EventFile):
			files++
		}
		return true
	})
	if err != nil {
		return 0, 0, err
	}
	e.metrics.AddVisited(int64(files + dirs))
	return files, dirs, nil
}

// Batch returns the engine's batch operation runner.
func (e *Engine) Batch() *BatchOps { return e.batchOps }

// Metrics returns a snapshot of the engine's rolling metrics.
func (e *Engine) Metrics() map[string]interface{} { return e.metrics.GetMetrics() }

// Ensure Engine implements the operation interfaces
var (
	_ interfaces.Copier  = (*Engine)(nil)
	_ interfaces.Remover = (*Engine)(nil)
)
