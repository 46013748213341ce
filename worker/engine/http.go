package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const dataURLPrefix = "data:image/png;base64,"

type colorizeRequest struct {
	Image          string  `json:"image"`
	Mask           string  `json:"mask,omitempty"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	Strength       float64 `json:"strength"`
	Seed           *int64  `json:"seed,omitempty"`
	Size           int     `json:"size"`
	Denoise        bool    `json:"denoise"`
	DenoiseSigma   int     `json:"denoise_sigma"`
}

type colorizeResponse struct {
	Image string `json:"image"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// HTTPEngine talks to the diffusion backend over its JSON API. Pages and
// masks travel as base64 PNG, results come back as data URLs.
type HTTPEngine struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewHTTPEngine(baseURL string, logger *zap.Logger) *HTTPEngine {
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			// Diffusion passes take minutes on CPU-only backends.
			Timeout: 10 * time.Minute,
		},
		pollInterval: 2 * time.Second,
		logger:       logger,
	}
}

// EnsureReady blocks until the engine reports a loaded model or the
// context expires.
func (e *HTTPEngine) EnsureReady(ctx context.Context) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		err := e.checkHealth(ctx)
		if err == nil {
			e.logger.Info("Colorization engine ready", zap.String("url", e.baseURL))
			return nil
		}
		e.logger.Info("Waiting for colorization engine", zap.String("url", e.baseURL), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("engine not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *HTTPEngine) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if !health.ModelLoaded {
		return errors.New("model not loaded yet")
	}
	return nil
}

func (e *HTTPEngine) Colorize(ctx context.Context, req Request) (image.Image, error) {
	payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal colorize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/v1/colorize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build colorize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("colorize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out colorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode colorize response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("engine error: %s", out.Error)
	}

	img, err := decodeImagePayload(out.Image)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Page colorized",
		zap.Duration("took", time.Since(start)),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return img, nil
}

func encodeRequest(req Request) (*colorizeRequest, error) {
	if req.Image == nil {
		return nil, errors.New("no image to colorize")
	}

	p := req.Params.normalized()

	imgB64, err := encodePNG(req.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page: %w", err)
	}

	out := &colorizeRequest{
		Image:          imgB64,
		Prompt:         p.Prompt + req.Guidance,
		NegativePrompt: p.NegativePrompt,
		Steps:          p.Steps,
		GuidanceScale:  p.GuidanceScale,
		Strength:       p.Strength,
		Seed:           p.Seed,
		Size:           p.Size,
		Denoise:        p.Denoise,
		DenoiseSigma:   p.DenoiseSigma,
	}

	if req.Mask != nil {
		maskB64, err := encodePNG(req.Mask)
		if err != nil {
			return nil, fmt.Errorf("failed to encode mask: %w", err)
		}
		out.Mask = maskB64
	}
	return out, nil
}

func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeImagePayload(payload string) (image.Image, error) {
	if payload == "" {
		return nil, errors.New("engine returned no image")
	}

	payload = strings.TrimPrefix(payload, dataURLPrefix)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode engine image: %w", err)
	}
	return img, nil
}
