package recording

import (
	"image"
	"math"
)

// Grid returns the column and row count for n tiles:
// cols = ceil(sqrt(n)), rows = ceil(n/cols).
func Grid(n int) (cols, rows int) {
	if n <= 0 {
		return 0, 0
	}
	cols = int(math.Ceil(math.Sqrt(float64(n))))
	rows = (n + cols - 1) / cols
	return cols, rows
}

// Layout splits a width×height surface into n tiles, row by row.
func Layout(n, width, height int) []image.Rectangle {
	cols, rows := Grid(n)
	if cols == 0 {
		return nil
	}
	tw, th := width/cols, height/rows
	out := make([]image.Rectangle, 0, n)
	for i := range n {
		x, y := (i%cols)*tw, (i/cols)*th
		out = append(out, image.Rect(x, y, x+tw, y+th))
	}
	return out
}
