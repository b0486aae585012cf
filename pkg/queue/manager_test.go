package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(30 * time.Second)
}

func TestEnqueuePullAck(t *testing.T) {
	m := newTestManager()
	m.Enqueue(TaskQueue, "a", EnqueueOptions{PartitionKey: "t1"})

	recs, err := m.Pull(TaskQueue, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].Payload)
	assert.NotEmpty(t, recs[0].LeaseID)

	require.NoError(t, m.Ack(TaskQueue, recs[0].LeaseID))
	assert.Equal(t, 0, m.Depth(TaskQueue))

	_, err = m.Pull(TaskQueue, 1)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestLeasedRecordNotRedelivered(t *testing.T) {
	m := newTestManager()
	m.Enqueue(TaskQueue, "a", EnqueueOptions{PartitionKey: "t1"})

	first, err := m.Pull(TaskQueue, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Same record must not appear in a second pull while leased.
	_, err = m.Pull(TaskQueue, 1)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestPartitionSerialization(t *testing.T) {
	m := newTestManager()
	m.Enqueue(TaskQueue, "a1", EnqueueOptions{PartitionKey: "A"})
	m.Enqueue(TaskQueue, "a2", EnqueueOptions{PartitionKey: "A"})

	recs, err := m.Pull(TaskQueue, 2)
	require.NoError(t, err)
	// Second record of the same partition stays blocked behind the lease.
	require.Len(t, recs, 1)
	assert.Equal(t, "a1", recs[0].Payload)

	// After ack, the next record of the partition becomes eligible.
	require.NoError(t, m.Ack(TaskQueue, recs[0].LeaseID))
	recs, err = m.Pull(TaskQueue, 2)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a2", recs[0].Payload)
}

func TestRoundRobinFairness(t *testing.T) {
	m := newTestManager()
	// Three A tasks ahead of B and C; a pull of 3 must still serve each thread once.
	for _, p := range []string{"A", "A", "A", "B", "C"} {
		m.Enqueue(TaskQueue, p, EnqueueOptions{PartitionKey: p})
	}

	recs, err := m.Pull(TaskQueue, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	parts := map[string]int{}
	for _, r := range recs {
		parts[r.PartitionKey]++
	}
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1}, parts)
}

func TestNackRedeliversFIFO(t *testing.T) {
	m := newTestManager()
	m.Enqueue(TaskQueue, "a1", EnqueueOptions{PartitionKey: "A"})
	m.Enqueue(TaskQueue, "a2", EnqueueOptions{PartitionKey: "A"})

	recs, err := m.Pull(TaskQueue, 1)
	require.NoError(t, err)
	require.NoError(t, m.Nack(TaskQueue, recs[0].LeaseID))

	// Redelivery keeps FIFO order within the partition.
	recs, err = m.Pull(TaskQueue, 1)
	require.NoError(t, err)
	assert.Equal(t, "a1", recs[0].Payload)
	assert.Equal(t, 2, recs[0].Attempts)
}

func TestUnpartitionedRecordsDoNotBlockEachOther(t *testing.T) {
	m := newTestManager()
	m.Enqueue(TaskQueue, "x", EnqueueOptions{})
	m.Enqueue(TaskQueue, "y", EnqueueOptions{})

	recs, err := m.Pull(TaskQueue, 5)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	m.Enqueue(TaskQueue, "a", EnqueueOptions{PartitionKey: "A"})

	recs, err := m.Pull(TaskQueue, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// Expire manually (the sweeper does the same on its tick).
	n := m.expireLeases(time.Now().Add(time.Second))
	assert.Equal(t, 1, n)

	recs, err = m.Pull(TaskQueue, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", recs[0].Payload)
}

func TestAckUnknownLease(t *testing.T) {
	m := newTestManager()
	assert.ErrorIs(t, m.Ack(TaskQueue, "nope"), ErrUnknownLease)
	assert.ErrorIs(t, m.Nack(TaskQueue, "nope"), ErrUnknownLease)
}

func TestStopTwiceDoesNotPanic(t *testing.T) {
	m := newTestManager()
	m.Start()
	m.Stop()
	assert.NotPanics(t, m.Stop)
}

func TestAllStats(t *testing.T) {
	m := newTestManager()
	m.Enqueue(TaskQueue, "a", EnqueueOptions{PartitionKey: "A"})
	m.Enqueue(TaskQueue, "b", EnqueueOptions{PartitionKey: "B"})
	_, err := m.Pull(TaskQueue, 1)
	require.NoError(t, err)

	stats := m.AllStats()
	require.Len(t, stats, 1)
	assert.Equal(t, TaskQueue, stats[0].Name)
	assert.Equal(t, 2, stats[0].Depth)
	assert.Equal(t, 1, stats[0].InFlight)
}
