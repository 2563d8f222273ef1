package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannelOverwritesOldest(t *testing.T) {
	rc := NewRingChannel[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	require.Equal(t, 3, rc.Len())
	assert.Equal(t, 3, rc.Cap())

	ctx := context.Background()
	var got []int
	for rc.Len() > 0 {
		v, err := rc.Receive(ctx)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got)

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
	assert.Equal(t, int64(3), m.Processed)
}

func TestRingChannelTrySend(t *testing.T) {
	rc := NewRingChannel[string](1)
	assert.True(t, rc.TrySend("a"))
	assert.False(t, rc.TrySend("b"))
	assert.True(t, rc.Send("c"), "Send reports the dropped element")
}

func TestRingChannelReceiveHonoursContext(t *testing.T) {
	rc := NewRingChannel[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := rc.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRingChannelRejectsZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { NewRingChannel[int](0) })
}
