package colortrack

import (
	"image"
	"sort"

	"github.com/cenkalti/dominantcolor"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

const (
	paletteSize  = 3
	maxKMeansObs = 12000
)

// kmeansSample clusters the filtered pixels and returns the cluster
// centers ordered by population. Returns nil when clustering fails so the
// caller can fall back.
func kmeansSample(filtered []Color) []Color {
	step := 1
	if len(filtered) > maxKMeansObs {
		step = len(filtered) / maxKMeansObs
	}

	var observations clusters.Observations
	for i := 0; i < len(filtered); i += step {
		c := filtered[i]
		observations = append(observations, clusters.Coordinates{
			float64(c.R) / 255,
			float64(c.G) / 255,
			float64(c.B) / 255,
		})
	}
	if len(observations) < paletteSize {
		return nil
	}

	km := kmeans.New()
	cc, err := km.Partition(observations, paletteSize)
	if err != nil || len(cc) == 0 {
		return nil
	}

	sort.Slice(cc, func(i, j int) bool {
		return len(cc[i].Observations) > len(cc[j].Observations)
	})

	out := make([]Color, 0, len(cc))
	for _, cluster := range cc {
		center := cluster.Center
		if len(center) < 3 {
			continue
		}
		out = append(out, Color{
			clampChannel(center[0] * 255),
			clampChannel(center[1] * 255),
			clampChannel(center[2] * 255),
		})
	}
	return out
}

// dominantSample extracts weighted dominant colors straight from the
// image when clustering produced nothing usable.
func dominantSample(img image.Image) []Color {
	candidates := dominantcolor.FindWeight(img, paletteSize)
	out := make([]Color, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Color{c.RGBA.R, c.RGBA.G, c.RGBA.B})
	}
	return out
}

func clampChannel(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
