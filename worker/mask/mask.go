package mask

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type Strategy string

const (
	// StrategyBorderFlood keeps only white regions that are sealed off from
	// the page background: flood-fill from the borders eats the open paper,
	// what survives is bubble interiors.
	StrategyBorderFlood Strategy = "border-flood"

	// StrategyInkProximity keeps white pixels that sit close to dark ink,
	// on the assumption that lettering lives inside its bubble.
	StrategyInkProximity Strategy = "ink-proximity"
)

const softenSigma = 1.0

type Options struct {
	Strategy       Strategy
	WhiteThreshold uint8
	DarkThreshold  uint8
	TextDilate     int
	BubbleDilate   int
	MaxCoverage    float64
}

func DefaultOptions(strategy Strategy) Options {
	switch strategy {
	case StrategyInkProximity:
		return Options{
			Strategy:       StrategyInkProximity,
			WhiteThreshold: 245,
			DarkThreshold:  180,
			TextDilate:     31,
			BubbleDilate:   9,
			MaxCoverage:    0.35,
		}
	default:
		return Options{
			Strategy:       StrategyBorderFlood,
			WhiteThreshold: 245,
			BubbleDilate:   5,
			MaxCoverage:    0.30,
		}
	}
}

type Generator struct {
	opts   Options
	logger *zap.Logger
}

func NewGenerator(opts Options, logger *zap.Logger) *Generator {
	return &Generator{opts: opts, logger: logger}
}

// Generate builds the protection mask for a page. A nil mask with a nil
// error means colorize the whole page: either nothing qualified for
// protection or the candidate region was too large to trust.
func (g *Generator) Generate(img image.Image) (*image.Gray, float64, error) {
	switch g.opts.Strategy {
	case StrategyBorderFlood, "":
		m, coverage := g.borderFlood(img)
		return m, coverage, nil
	case StrategyInkProximity:
		m, coverage := g.inkProximity(img)
		return m, coverage, nil
	default:
		return nil, 0, fmt.Errorf("unknown mask strategy %q", g.opts.Strategy)
	}
}

func (g *Generator) borderFlood(img image.Image) (*image.Gray, float64) {
	gray := grayFrom(img)
	w := gray.Rect.Dx()
	h := gray.Rect.Dy()

	white := make([]bool, w*h)
	for i, v := range gray.Pix {
		white[i] = v >= g.opts.WhiteThreshold
	}

	// Flood-fill from the borders through white pixels: everything reached
	// is open background, not a bubble.
	bg := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))
	enqueue := func(i int) {
		if white[i] && !bg[i] {
			bg[i] = true
			queue = append(queue, i)
		}
	}
	for x := 0; x < w; x++ {
		enqueue(x)
		enqueue((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		enqueue(y * w)
		enqueue(y*w + w - 1)
	}
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		x := i % w
		y := i / w
		if y > 0 {
			enqueue(i - w)
		}
		if y < h-1 {
			enqueue(i + w)
		}
		if x > 0 {
			enqueue(i - 1)
		}
		if x < w-1 {
			enqueue(i + 1)
		}
	}

	protected := 0
	for i := range white {
		if white[i] && !bg[i] {
			protected++
		}
	}
	coverage := float64(protected) / float64(w*h)
	g.logger.Info("Mask coverage", zap.Float64("coverage", coverage))

	if protected == 0 {
		return nil, coverage
	}
	if coverage > g.opts.MaxCoverage {
		g.logger.Warn("Mask too large, skipping protection",
			zap.Float64("coverage", coverage),
		)
		return nil, coverage
	}

	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range white {
		if white[i] && !bg[i] {
			m.Pix[i] = 255
		}
	}
	return soften(m, g.opts.BubbleDilate), coverage
}

func (g *Generator) inkProximity(img image.Image) (*image.Gray, float64) {
	gray := grayFrom(img)
	w := gray.Rect.Dx()
	h := gray.Rect.Dy()

	dark := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range gray.Pix {
		if v <= g.opts.DarkThreshold {
			dark.Pix[i] = 255
		}
	}
	near := maxFilter(dark, g.opts.TextDilate)

	m := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range gray.Pix {
		if v >= g.opts.WhiteThreshold && near.Pix[i] > 0 {
			m.Pix[i] = 255
		}
	}

	// Unlike the flood variant, coverage here is judged on the softened
	// mask, so the dilation counts against the ceiling.
	soft := soften(m, g.opts.BubbleDilate)
	coverage := coverageOf(soft)
	g.logger.Info("Mask coverage", zap.Float64("coverage", coverage))

	if coverage == 0 {
		return nil, coverage
	}
	if coverage > g.opts.MaxCoverage {
		g.logger.Warn("Mask too large, skipping protection",
			zap.Float64("coverage", coverage),
		)
		return nil, coverage
	}
	return soft, coverage
}

func soften(m *image.Gray, dilate int) *image.Gray {
	return grayFrom(imaging.Blur(maxFilter(m, dilate), softenSigma))
}

func coverageOf(m *image.Gray) float64 {
	nonzero := 0
	for _, v := range m.Pix {
		if v > 0 {
			nonzero++
		}
	}
	return float64(nonzero) / float64(len(m.Pix))
}

// grayFrom converts using the same integer Rec.601 weights the compositor
// applies, so mask and ink decisions agree on luminance.
func grayFrom(img image.Image) *image.Gray {
	src := imaging.Clone(img)
	w := src.Rect.Dx()
	h := src.Rect.Dy()

	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := y * src.Stride
		gi := y * gray.Stride
		for x := 0; x < w; x++ {
			r := uint32(src.Pix[si])
			g := uint32(src.Pix[si+1])
			b := uint32(src.Pix[si+2])
			gray.Pix[gi+x] = uint8((299*r + 587*g + 114*b) / 1000)
			si += 4
		}
	}
	return gray
}

// maxFilter is a square-window dilation, split into two passes since max
// separates.
func maxFilter(src *image.Gray, size int) *image.Gray {
	if size <= 1 {
		return src
	}
	r := size / 2
	w := src.Rect.Dx()
	h := src.Rect.Dy()

	tmp := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		out := tmp.Pix[y*tmp.Stride : y*tmp.Stride+w]
		for x := 0; x < w; x++ {
			lo, hi := x-r, x+r
			if lo < 0 {
				lo = 0
			}
			if hi > w-1 {
				hi = w - 1
			}
			m := uint8(0)
			for i := lo; i <= hi; i++ {
				if row[i] > m {
					m = row[i]
				}
			}
			out[x] = m
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			lo, hi := y-r, y+r
			if lo < 0 {
				lo = 0
			}
			if hi > h-1 {
				hi = h - 1
			}
			m := uint8(0)
			for i := lo; i <= hi; i++ {
				if v := tmp.Pix[i*tmp.Stride+x]; v > m {
					m = v
				}
			}
			dst.Pix[y*dst.Stride+x] = m
		}
	}
	return dst
}
