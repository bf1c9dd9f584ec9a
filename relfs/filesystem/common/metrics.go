package common

import (
	"sync"
	"time"
)

// BaseMetrics provides common fields used across different metrics types
type BaseMetrics struct {
	TotalOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	LastOperation   time.Time
	Mu              sync.RWMutex
}

// UpdateBaseMetrics updates common metrics fields
func (bm *BaseMetrics) UpdateBaseMetrics(start time.Time, success bool) {
	bm.Mu.Lock()
	defer bm.Mu.Unlock()

	bm.TotalOperations++
	if success {
		bm.SuccessfulOps++
	} else {
		bm.FailedOps++
	}
	bm.LastOperation = time.Now()
}

// GetBaseMetrics returns the common metrics as a map
func (bm *BaseMetrics) GetBaseMetrics() map[string]interface{} {
	bm.Mu.RLock()
	defer bm.Mu.RUnlock()

	return map[string]interface{}{
		"total_operations": bm.TotalOperations,
		"successful_ops":   bm.SuccessfulOps,
		"failed_ops":       bm.FailedOps,
		"last_operation":   bm.LastOperation,
	}
}

// EngineMetrics tracks performance for traversal, copy and remove operations
type EngineMetrics struct {
	BaseMetrics
	BytesCopied    int64
	EntriesVisited int64
	EntriesRemoved int64
}

// UpdateMetrics updates engine metrics for one completed operation
func (em *EngineMetrics) UpdateMetrics(start time.Time, success bool, bytesCopied int64) {
	em.UpdateBaseMetrics(start, success)

	em.Mu.Lock()
	defer em.Mu.Unlock()
	em.BytesCopied += bytesCopied
}

// AddVisited records visited entries outside the per-operation update path
func (em *EngineMetrics) AddVisited(n int64) {
	em.Mu.Lock()
	defer em.Mu.Unlock()
	em.EntriesVisited += n
}

// AddRemoved records removed entries outside the per-operation update path
func (em *EngineMetrics) AddRemoved(n int64) {
	em.Mu.Lock()
	defer em.Mu.Unlock()
	em.EntriesRemoved += n
}

// GetMetrics returns engine metrics as a map
func (em *EngineMetrics) GetMetrics() map[string]interface{} {
	m := em.GetBaseMetrics()

	em.Mu.RLock()
	defer em.Mu.RUnlock()
	m["bytes_copied"] = em.BytesCopied
	m["entries_visited"] = em.EntriesVisited
	m["entries_removed"] = em.EntriesRemoved
	return m
}
