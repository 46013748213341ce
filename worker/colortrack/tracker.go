package colortrack

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
)

type Method string

const (
	// MethodPercentile samples the filtered pixel sequence at fixed
	// positions. Cheap and stable, the default.
	MethodPercentile Method = "percentile"

	// MethodKMeans clusters the filtered pixels and keeps the largest
	// cluster centers, falling back to dominant-color extraction when
	// clustering collapses.
	MethodKMeans Method = "kmeans"
)

const (
	maxHistory = 5
	minSamples = 100

	// Near-black pixels are lineart, near-white pixels are paper; neither
	// says anything about the palette.
	darkCutoff  = 20
	lightCutoff = 235
)

type Color struct {
	R, G, B uint8
}

func (c Color) Hex() string {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hex()
}

// Tracker remembers representative colors from recently colorized pages and
// turns them into prompt guidance, nudging the engine toward a consistent
// palette across a chapter. Advisory only: it never blocks processing.
type Tracker struct {
	method  Method
	history [][]Color
	logger  *zap.Logger
}

func NewTracker(method Method, logger *zap.Logger) *Tracker {
	if method == "" {
		method = MethodPercentile
	}
	return &Tracker{method: method, logger: logger}
}

// Update records palette samples from a colorized page. Pages without
// enough usable pixels are skipped.
func (t *Tracker) Update(img image.Image) {
	colors := t.sample(img)
	if len(colors) == 0 {
		return
	}
	t.history = append(t.history, colors)
	if len(t.history) > maxHistory {
		t.history = t.history[1:]
	}
	t.logger.Info("Updated color history", zap.Int("pages", len(t.history)))
}

// Guidance returns a prompt suffix describing the running palette, or ""
// when no pages have contributed yet.
func (t *Tracker) Guidance() string {
	avg, ok := t.average()
	if !ok {
		return ""
	}

	r, g, b := int(avg.R), int(avg.G), int(avg.B)
	var palette string
	switch {
	case r > 140 && g < 100 && b < 100:
		palette = "warm red and orange tones"
	case b > 140 && r < 100 && g < 100:
		palette = "cool blue tones"
	case r > 120 && g > 120 && b < 80:
		palette = "warm yellow and beige tones"
	case r > 100 && g < 80 && b > 100:
		palette = "purple and magenta tones"
	default:
		palette = "consistent balanced colors"
	}

	return ", maintaining " + palette + " from previous pages"
}

// AverageHex reports the running palette average for status displays.
func (t *Tracker) AverageHex() (string, bool) {
	avg, ok := t.average()
	if !ok {
		return "", false
	}
	return avg.Hex(), true
}

func (t *Tracker) Pages() int {
	return len(t.history)
}

// Reset clears the history, for chapter boundaries.
func (t *Tracker) Reset() {
	t.history = nil
	t.logger.Info("Color history reset")
}

func (t *Tracker) average() (Color, bool) {
	if len(t.history) == 0 {
		return Color{}, false
	}
	var rSum, gSum, bSum, n int
	for _, page := range t.history {
		for _, c := range page {
			rSum += int(c.R)
			gSum += int(c.G)
			bSum += int(c.B)
			n++
		}
	}
	if n == 0 {
		return Color{}, false
	}
	return Color{uint8(rSum / n), uint8(gSum / n), uint8(bSum / n)}, true
}

func (t *Tracker) sample(img image.Image) []Color {
	filtered := filterPixels(img)
	if len(filtered) < minSamples {
		return nil
	}

	switch t.method {
	case MethodKMeans:
		if colors := kmeansSample(filtered); len(colors) > 0 {
			return colors
		}
		return dominantSample(img)
	default:
		return percentileSample(filtered)
	}
}

// filterPixels keeps mid-range pixels in raster order.
func filterPixels(img image.Image) []Color {
	src := imaging.Clone(img)
	w := src.Rect.Dx()
	h := src.Rect.Dy()

	filtered := make([]Color, 0, w*h/4)
	for y := 0; y < h; y++ {
		i := y * src.Stride
		for x := 0; x < w; x++ {
			r := src.Pix[i]
			g := src.Pix[i+1]
			b := src.Pix[i+2]
			lo, hi := r, r
			if g < lo {
				lo = g
			}
			if b < lo {
				lo = b
			}
			if g > hi {
				hi = g
			}
			if b > hi {
				hi = b
			}
			if lo > darkCutoff && hi < lightCutoff {
				filtered = append(filtered, Color{r, g, b})
			}
			i += 4
		}
	}
	return filtered
}

// percentileSample picks the pixels sitting a quarter, half, and three
// quarters of the way through the filtered sequence.
func percentileSample(filtered []Color) []Color {
	out := make([]Color, 0, 3)
	for _, p := range []int{25, 50, 75} {
		out = append(out, filtered[len(filtered)*p/100])
	}
	return out
}
