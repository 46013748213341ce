package compositor

import (
	"image"

	"github.com/disintegration/imaging"
)

type Meta struct {
	OriginalWidth   int
	OriginalHeight  int
	ProcessedWidth  int
	ProcessedHeight int
}

// round8 trims to the nearest lower multiple of 8, floored at 8. Diffusion
// backends reject dimensions that are not multiples of 8.
func round8(x int) int {
	x -= x % 8
	if x < 8 {
		return 8
	}
	return x
}

// Preprocess scales a page down to fit maxSide (never up) and trims both
// dimensions to multiples of 8.
func Preprocess(img image.Image, maxSide int) (*image.NRGBA, Meta) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := 1.0
	longest := w
	if h > longest {
		longest = h
	}
	if maxSide > 0 && longest > maxSide {
		scale = float64(maxSide) / float64(longest)
	}

	nw := round8(int(float64(w) * scale))
	nh := round8(int(float64(h) * scale))

	meta := Meta{
		OriginalWidth:   w,
		OriginalHeight:  h,
		ProcessedWidth:  nw,
		ProcessedHeight: nh,
	}
	if nw == w && nh == h {
		return imaging.Clone(img), meta
	}
	return imaging.Resize(img, nw, nh, imaging.Lanczos), meta
}

// Postprocess restores the dimensions recorded before preprocessing.
func Postprocess(img image.Image, meta Meta) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == meta.OriginalWidth && b.Dy() == meta.OriginalHeight {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, meta.OriginalWidth, meta.OriginalHeight, imaging.Lanczos)
}

// PreserveInk copies original pixels over the colorized output wherever the
// original is darker than threshold, keeping lineart and lettering intact.
func PreserveInk(original, colored image.Image, threshold uint8) *image.NRGBA {
	out := imaging.Clone(colored)
	src := imaging.Clone(original)

	if src.Rect.Dx() != out.Rect.Dx() || src.Rect.Dy() != out.Rect.Dy() {
		src = imaging.Resize(src, out.Rect.Dx(), out.Rect.Dy(), imaging.Lanczos)
	}

	w := out.Rect.Dx()
	h := out.Rect.Dy()
	for y := 0; y < h; y++ {
		si := y * src.Stride
		oi := y * out.Stride
		for x := 0; x < w; x++ {
			r := uint32(src.Pix[si])
			g := uint32(src.Pix[si+1])
			b := uint32(src.Pix[si+2])
			if uint8((299*r+587*g+114*b)/1000) < threshold {
				copy(out.Pix[oi:oi+4], src.Pix[si:si+4])
			}
			si += 4
			oi += 4
		}
	}
	return out
}
