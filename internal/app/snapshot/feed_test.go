package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_SubscribeStartsWithLatest(t *testing.T) {
	f := NewFeed(1, 4)
	f.Publish(2)

	ch, cancel := f.Subscribe()
	defer cancel()
	assert.Equal(t, 2, <-ch)

	f.Publish(3)
	assert.Equal(t, 3, <-ch)
	assert.Equal(t, 3, f.Latest())
}

func TestFeed_FullSubscriberMissesSnapshots(t *testing.T) {
	f := NewFeed(0, 1)
	ch, cancel := f.Subscribe()
	defer cancel()

	assert.Equal(t, 1, f.Publish(1))
	assert.Equal(t, 0, <-ch)
	assert.Equal(t, 0, f.Publish(2))
	assert.Equal(t, 2, <-ch)
	assert.Equal(t, 2, f.Latest())
}

func TestFeed_CloseEndsStreams(t *testing.T) {
	f := NewFeed("a", 2)
	ch, cancel := f.Subscribe()
	<-ch

	f.Close()
	_, ok := <-ch
	require.False(t, ok)

	// cancel after close must not panic
	cancel()
	assert.Equal(t, 0, f.Publish("b"))
	assert.Equal(t, "a", f.Latest())

	late, _ := f.Subscribe()
	assert.Equal(t, "a", <-late)
	_, ok = <-late
	assert.False(t, ok)
}
