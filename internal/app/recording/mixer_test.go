package recording

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMixerSumsAndSaturates(t *testing.T) {
	t.Parallel()
	m := NewMixer()
	defer m.Close()

	_, ok := m.ReadFrame()
	assert.False(t, ok)

	m.WritePCM("a", []int16{1000, -1000, 30000})
	m.WritePCM("b", []int16{500, -500, 30000})
	m.WritePCM("b", []int16{7})

	f, ok := m.ReadFrame()
	require.True(t, ok)
	require.Len(t, f, samplesPerFrame)
	assert.Equal(t, int16(1500), f[0])
	assert.Equal(t, int16(-1500), f[1])
	assert.Equal(t, int16(32767), f[2])
	assert.Zero(t, f[3])

	f, ok = m.ReadFrame()
	require.True(t, ok)
	assert.Equal(t, int16(7), f[0])

	_, ok = m.ReadFrame()
	assert.False(t, ok)
}

func TestMixerBoundsBacklog(t *testing.T) {
	t.Parallel()
	m := NewMixer()
	for i := range maxQueuedFrames + 10 {
		m.WritePCM("a", []int16{int16(i)})
	}
	f, ok := m.ReadFrame()
	require.True(t, ok)
	assert.Equal(t, int16(10), f[0])

	m.Remove("a")
	_, ok = m.ReadFrame()
	assert.False(t, ok)
}
