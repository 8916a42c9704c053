package recognizer

import (
	"image"
	"math"
)

const (
	lbpRadius    = 1
	lbpNeighbors = 8
	lbpPatterns  = 1 << lbpNeighbors
)

// lbp computes the circular local binary pattern code of every pixel that
// has a full neighbourhood. The result is (w-2r) x (h-2r).
func lbp(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, max(0, w-2*lbpRadius), max(0, h-2*lbpRadius)))
	if dst.Rect.Empty() {
		return dst
	}

	at := func(x, y int) float64 {
		return float64(src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	for n := 0; n < lbpNeighbors; n++ {
		angle := 2 * math.Pi * float64(n) / lbpNeighbors
		x := lbpRadius * math.Cos(angle)
		y := -lbpRadius * math.Sin(angle)

		fx, fy := int(math.Floor(x)), int(math.Floor(y))
		cx, cy := int(math.Ceil(x)), int(math.Ceil(y))
		tx, ty := x-float64(fx), y-float64(fy)
		w1 := (1 - tx) * (1 - ty)
		w2 := tx * (1 - ty)
		w3 := (1 - tx) * ty
		w4 := tx * ty

		for i := lbpRadius; i < h-lbpRadius; i++ {
			for j := lbpRadius; j < w-lbpRadius; j++ {
				t := w1*at(j+fx, i+fy) + w2*at(j+cx, i+fy) + w3*at(j+fx, i+cy) + w4*at(j+cx, i+cy)
				c := at(j, i)
				if t > c || math.Abs(t-c) < 1e-9 {
					dst.Pix[(i-lbpRadius)*dst.Stride+(j-lbpRadius)] |= 1 << n
				}
			}
		}
	}
	return dst
}

// spatialHistogram splits the pattern image into a grid x grid layout and
// concatenates the normalized pattern histogram of every cell.
func spatialHistogram(codes *image.Gray, grid int) []float32 {
	hist := make([]float32, grid*grid*lbpPatterns)
	b := codes.Bounds()
	cw, ch := b.Dx()/grid, b.Dy()/grid
	if cw == 0 || ch == 0 {
		return hist
	}

	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			cell := hist[(gy*grid+gx)*lbpPatterns : (gy*grid+gx+1)*lbpPatterns]
			for y := gy * ch; y < (gy+1)*ch; y++ {
				row := codes.Pix[y*codes.Stride:]
				for x := gx * cw; x < (gx+1)*cw; x++ {
					cell[row[x]]++
				}
			}
			total := float32(cw * ch)
			for i := range cell {
				cell[i] /= total
			}
		}
	}
	return hist
}

// Describe returns the LBP spatial histogram of a grey face image.
func Describe(face *image.Gray, grid int) []float32 {
	return spatialHistogram(lbp(face), grid)
}

// ChiSquare is the symmetric chi-square distance between two histograms:
// the sum of 2(a-b)^2/(a+b) over bins where a+b is non-zero.
func ChiSquare(a, b []float32) float32 {
	var d float32
	for i := range a {
		s := a[i] + b[i]
		if s > 0 {
			diff := a[i] - b[i]
			d += 2 * diff * diff / s
		}
	}
	return d
}
