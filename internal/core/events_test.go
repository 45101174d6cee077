package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	t.Parallel()

	b := NewBus[int]("test")
	c1, cancel1 := b.Subscribe(1)
	c2, cancel2 := b.Subscribe(1)
	defer cancel2()

	b.Publish(7)
	assert.Equal(t, 7, <-c1)
	assert.Equal(t, 7, <-c2)

	cancel1()
	cancel1()
	_, ok := <-c1
	assert.False(t, ok)

	b.Publish(8)
	assert.Equal(t, 8, <-c2)
}

func TestBusFullSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	b := NewBus[int]("test")
	slow, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(1)
	b.Publish(2)
	assert.Equal(t, 1, <-slow)
	assert.Empty(t, slow)
}

func TestBusClose(t *testing.T) {
	t.Parallel()

	b := NewBus[string]("test")
	ch, cancel := b.Subscribe(0)
	b.Close()
	_, ok := <-ch
	require.False(t, ok)
	cancel()

	late, _ := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}

func TestRouteFor(t *testing.T) {
	t.Parallel()

	assert.True(t, Route{From: "a"}.For("b"))
	assert.False(t, Route{From: "a"}.For("a"))
	assert.True(t, Route{From: "a", To: "b"}.For("b"))
	assert.False(t, Route{From: "a", To: "c"}.For("b"))
}
