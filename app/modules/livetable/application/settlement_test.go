package livetableservice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettlementQueue(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	q := NewSettlementQueue()
	q.Reset([]string{"c", "a", "b"})

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"a", "b"}, q.Ready(now, 2))

	q.MarkAttempt("a", now.Add(time.Second))
	assert.Equal(t, 1, q.Attempts("a"))
	assert.Equal(t, []string{"b", "c"}, q.Ready(now, 0))
	assert.Equal(t, []string{"a", "b", "c"}, q.Ready(now.Add(time.Second), 0))

	assert.True(t, q.Remove("b"))
	assert.False(t, q.Remove("b"))
	assert.False(t, q.Remove("zz"))
	assert.Equal(t, []string{"a", "c"}, q.Keys())

	q.Defer("c", now.Add(time.Minute))
	assert.Equal(t, 0, q.Attempts("c"))
	assert.Empty(t, q.Ready(now, 0))

	q.Reset(nil)
	assert.Zero(t, q.Len())
	assert.False(t, q.Contains("a"))
}
