package segmentation

import "math"

// Moore neighbourhood in clockwise order starting west: W, NW, N, NE, E, SE, S, SW.
var mooreDirs = [8]Point{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}}

// tracePerimeter walks the outer contour of the region carrying label,
// starting at its first pixel in raster order, and returns the chain-code
// length: 1 per axial step and √2 per diagonal step.
//
// A single pixel has perimeter 0.
func tracePerimeter(labels []int32, width, height int, label int32, start Point) float64 {
	inside := func(x, y int) bool {
		return x >= 0 && x < width && y >= 0 && y < height && labels[y*width+x] == label
	}

	cur := start
	// The start pixel is the first in raster order, so its west neighbour is
	// outside the region.
	back := 0
	first := -1
	var perimeter float64
	limit := 4*width*height + 8

	for steps := 0; steps < limit; steps++ {
		found := -1
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			if inside(cur.X+mooreDirs[d].X, cur.Y+mooreDirs[d].Y) {
				found = d
				break
			}
		}
		if found < 0 {
			return 0
		}
		if cur == start && found == first {
			break
		}
		if first < 0 {
			first = found
		}
		if found%2 == 0 {
			perimeter++
		} else {
			perimeter += math.Sqrt2
		}

		// The last outside pixel examined becomes the new backtrack point.
		prev := (found + 7) % 8
		px, py := cur.X+mooreDirs[prev].X, cur.Y+mooreDirs[prev].Y
		next := Point{X: cur.X + mooreDirs[found].X, Y: cur.Y + mooreDirs[found].Y}
		back = directionOf(px-next.X, py-next.Y)
		cur = next
	}
	return perimeter
}

func directionOf(dx, dy int) int {
	for d, p := range mooreDirs {
		if p.X == dx && p.Y == dy {
			return d
		}
	}
	return 0
}

// circularity returns 4π·area/perimeter², clamped to [0, 1]. A region with
// no measurable perimeter is treated as perfectly round.
func circularity(area int, perimeter float64) float64 {
	if perimeter <= 0 {
		return 1
	}
	c := 4 * math.Pi * float64(area) / (perimeter * perimeter)
	if c > 1 {
		return 1
	}
	return c
}
