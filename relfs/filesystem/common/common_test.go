package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ignored"))

	err := WrapError(ErrNotFound, "stat %s", "/x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "stat /x: entry does not exist", err.Error())
}

func TestSecureZero(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	SecureZero(b)
	for i, v := range b {
		assert.Zero(t, v, "byte %d not scrubbed", i)
	}

	// Degenerate inputs must not panic.
	SecureZero(nil)
	SecureZero([]byte{})
}

func TestEngineMetrics(t *testing.T) {
	var em EngineMetrics
	start := time.Now()

	em.UpdateMetrics(start, true, 100)
	em.UpdateMetrics(start, false, 0)
	em.AddVisited(5)
	em.AddRemoved(2)

	m := em.GetMetrics()
	assert.EqualValues(t, 2, m["total_operations"])
	assert.EqualValues(t, 1, m["successful_ops"])
	assert.EqualValues(t, 1, m["failed_ops"])
	assert.EqualValues(t, 100, m["bytes_copied"])
	assert.EqualValues(t, 5, m["entries_visited"])
	assert.EqualValues(t, 2, m["entries_removed"])
}
