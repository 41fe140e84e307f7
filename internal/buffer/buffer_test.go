package buffer

import (
	"sync"
	"testing"

	"github.com/amaresga/simtemp/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(ts uint64) record.Sample {
	return record.Sample{TimestampNs: ts, TempMC: int32(ts) * 10, Flags: record.FlagNewSample}
}

func timestamps(samples []record.Sample) []uint64 {
	out := make([]uint64, len(samples))
	for i, s := range samples {
		out[i] = s.TimestampNs
	}
	return out
}

func TestDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, DefaultCapacity, New(-3).Cap())
	assert.Equal(t, 7, New(7).Cap())
}

func TestPushWithinCapacity(t *testing.T) {
	r := New(4)
	for i := uint64(1); i <= 3; i++ {
		r.Push(sample(i))
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []uint64{1, 2, 3}, timestamps(r.Snapshot()))
}

func TestEviction(t *testing.T) {
	const capacity = 5
	r := New(capacity)
	for i := uint64(1); i <= capacity+1; i++ {
		r.Push(sample(i))
	}

	snap := r.Snapshot()
	require.Len(t, snap, capacity)
	assert.Equal(t, []uint64{2, 3, 4, 5, 6}, timestamps(snap))
}

func TestEvictionWrapsRepeatedly(t *testing.T) {
	r := New(3)
	for i := uint64(1); i <= 10; i++ {
		r.Push(sample(i))
		assert.LessOrEqual(t, r.Len(), 3)
	}

	assert.Equal(t, []uint64{8, 9, 10}, timestamps(r.Snapshot()))

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(10), latest.TimestampNs)
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New(2)
	r.Push(sample(1))

	snap := r.Snapshot()
	snap[0].TempMC = -1
	r.Push(sample(2))

	assert.Equal(t, int32(10), r.Snapshot()[0].TempMC)
	assert.Len(t, snap, 1)
}

func TestClear(t *testing.T) {
	r := New(3)
	r.Push(sample(1))
	r.Push(sample(2))
	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
	_, ok := r.Latest()
	assert.False(t, ok)

	r.Push(sample(3))
	assert.Equal(t, []uint64{3}, timestamps(r.Snapshot()))
}

func TestConcurrentSnapshotsSeeNoGaps(t *testing.T) {
	const capacity = 16
	r := New(capacity)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 5000; i++ {
			r.Push(sample(i))
		}
	}()

	for i := 0; i < 500; i++ {
		snap := r.Snapshot()
		assert.LessOrEqual(t, len(snap), capacity)
		for j := 1; j < len(snap); j++ {
			assert.Equal(t, snap[j-1].TimestampNs+1, snap[j].TimestampNs)
		}
	}

	wg.Wait()
}
