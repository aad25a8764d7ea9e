package field

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/intentsim/bloomcascade/internal/spatial"
)

// Grid is a row-major scalar grid over the domain. It is a derived cache,
// recomputed from the sampler every step.
type Grid struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float64 `json:"values"`
}

// At returns the value at cell (x, y), wrapping out-of-range coordinates.
func (g *Grid) At(x, y int) float64 {
	if g == nil || g.Width == 0 || g.Height == 0 {
		return 0
	}
	x = ((x % g.Width) + g.Width) % g.Width
	y = ((y % g.Height) + g.Height) % g.Height
	return g.Values[y*g.Width+x]
}

// AbsSum returns the sum of absolute cell values.
func (g *Grid) AbsSum() float64 {
	if g == nil {
		return 0
	}
	var sum float64
	for _, v := range g.Values {
		sum += math.Abs(v)
	}
	return sum
}

// Mean returns the mean cell value, or 0 for an empty grid.
func (g *Grid) Mean() float64 {
	if g == nil || len(g.Values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range g.Values {
		sum += v
	}
	return sum / float64(len(g.Values))
}

// ResampleAll samples the field at every stride-th cell of a width x height
// grid, fills the remaining cells from the nearest coarse sample and
// smooths the result with a toroidal Gaussian of sigma stride/2.
func (s *Sampler) ResampleAll(ctx context.Context, width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return &Grid{}, nil
	}
	stride := max(1, s.cfg.Stride)
	cw := (width + stride - 1) / stride
	ch := (height + stride - 1) / stride
	coarse := make([]float64, cw*ch)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for j := 0; j < ch; j++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := 0; i < cw; i++ {
				p := spatial.Vec2{X: float64(i * stride), Y: float64(j * stride)}
				coarse[j*cw+i] = s.Sample(p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resample field: %w", err)
	}

	grid := &Grid{Width: width, Height: height, Values: make([]float64, width*height)}
	for y := 0; y < height; y++ {
		cy := nearestCoarse(y, stride, ch)
		for x := 0; x < width; x++ {
			cx := nearestCoarse(x, stride, cw)
			grid.Values[y*width+x] = coarse[cy*cw+cx]
		}
	}
	if stride > 1 {
		smooth(grid, float64(stride)/2)
	}
	return grid, nil
}

func nearestCoarse(v, stride, n int) int {
	c := int(math.Round(float64(v) / float64(stride)))
	return c % n
}

// smooth applies a separable Gaussian blur in place with wrapped edges.
func smooth(g *Grid, sigma float64) {
	kernel := gaussianKernel(sigma)
	r := len(kernel) / 2
	tmp := make([]float64, len(g.Values))

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			var acc float64
			for k, w := range kernel {
				acc += w * g.At(x+k-r, y)
			}
			tmp[y*g.Width+x] = acc
		}
	}
	src := &Grid{Width: g.Width, Height: g.Height, Values: tmp}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			var acc float64
			for k, w := range kernel {
				acc += w * src.At(x, y+k-r)
			}
			g.Values[y*g.Width+x] = acc
		}
	}
}

// gaussianKernel returns a normalized kernel truncated at 3 sigma.
func gaussianKernel(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		w := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+r] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}
