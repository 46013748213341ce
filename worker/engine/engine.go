package engine

import (
	"context"
	"image"
)

const (
	DefaultPrompt         = "full color manga page, anime style coloring, clean lineart preserved, soft cel shading, consistent colors, detailed lighting, high quality"
	DefaultNegativePrompt = "blurry, repainting lines, messy colors, color bleeding, oversaturated, artifacts, low quality, bad anatomy"

	DefaultSteps         = 25
	DefaultGuidanceScale = 7.0
	DefaultStrength      = 0.45
	DefaultSize          = 576
	DefaultDenoiseSigma  = 25
)

// Params are the diffusion knobs forwarded to the engine.
type Params struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
	Strength       float64
	Seed           *int64
	Size           int
	Denoise        bool
	DenoiseSigma   int
}

func DefaultParams() Params {
	return Params{
		Prompt:         DefaultPrompt,
		NegativePrompt: DefaultNegativePrompt,
		Steps:          DefaultSteps,
		GuidanceScale:  DefaultGuidanceScale,
		Strength:       DefaultStrength,
		Size:           DefaultSize,
		Denoise:        true,
		DenoiseSigma:   DefaultDenoiseSigma,
	}
}

func (p Params) normalized() Params {
	if p.Prompt == "" {
		p.Prompt = DefaultPrompt
	}
	if p.NegativePrompt == "" {
		p.NegativePrompt = DefaultNegativePrompt
	}
	if p.Steps <= 0 {
		p.Steps = DefaultSteps
	}
	if p.GuidanceScale <= 0 {
		p.GuidanceScale = DefaultGuidanceScale
	}
	if p.Strength <= 0 {
		p.Strength = DefaultStrength
	}
	if p.Size <= 0 {
		p.Size = DefaultSize
	}
	if p.DenoiseSigma <= 0 {
		p.DenoiseSigma = DefaultDenoiseSigma
	}
	return p
}

// Request carries one page through a colorization pass. Mask is optional;
// Guidance is appended to the prompt verbatim.
type Request struct {
	Image    image.Image
	Mask     *image.Gray
	Guidance string
	Params   Params
}

type Engine interface {
	EnsureReady(ctx context.Context) error
	Colorize(ctx context.Context, req Request) (image.Image, error)
}

// Func adapts a plain function to the Engine interface. Used by tests and
// local stubs; EnsureReady always succeeds.
type Func func(ctx context.Context, req Request) (image.Image, error)

func (f Func) Colorize(ctx context.Context, req Request) (image.Image, error) {
	return f(ctx, req)
}

func (f Func) EnsureReady(ctx context.Context) error {
	return nil
}
