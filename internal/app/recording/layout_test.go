package recording

import (
	"image"
	"image/color"
	"testing"

	"github.com/dkeye/consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		n, cols, rows int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{2, 2, 1},
		{3, 2, 2},
		{4, 2, 2},
		{5, 3, 2},
		{9, 3, 3},
		{10, 4, 3},
	}
	for _, tc := range cases {
		cols, rows := Grid(tc.n)
		assert.Equal(t, tc.cols, cols, "cols for %d", tc.n)
		assert.Equal(t, tc.rows, rows, "rows for %d", tc.n)
	}
}

func TestLayoutReflows(t *testing.T) {
	t.Parallel()
	one := Layout(1, 1280, 720)
	require.Len(t, one, 1)
	assert.Equal(t, image.Rect(0, 0, 1280, 720), one[0])

	five := Layout(5, 1280, 720)
	require.Len(t, five, 5)
	assert.Equal(t, image.Rect(0, 0, 426, 360), five[0])
	assert.Equal(t, image.Rect(852, 0, 1278, 360), five[2])
	assert.Equal(t, image.Rect(426, 360, 852, 720), five[4])
}

type staticFrames map[domain.ParticipantID]image.Image

func (s staticFrames) LatestFrame(id domain.ParticipantID) image.Image { return s[id] }

func TestComposeScalesFrames(t *testing.T) {
	t.Parallel()
	red := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range red.Pix {
		if i%4 == 0 || i%4 == 3 {
			red.Pix[i] = 255
		}
	}
	canvas := image.NewRGBA(image.Rect(0, 0, 200, 100))
	Compose(canvas, []Tile{{Participant: "a"}, {Participant: "b"}}, staticFrames{"a": red})

	assert.Equal(t, color.RGBA{R: 255, A: 255}, canvas.RGBAAt(50, 50))
	assert.Equal(t, placeholder("b"), canvas.RGBAAt(150, 50))
	assert.Equal(t, color.RGBA{A: 255}, canvas.RGBAAt(0, 0))
}
