package qr

import (
	"QRLinks-Backend/internal/config"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

var ErrRender = errors.New("qr render failed")

const (
	MinSize = 128
	MaxSize = 1024
)

// Options controls the look of one rendered code. Empty colors fall back to black on white.
type Options struct {
	FgColor     string
	BgColor     string
	BorderColor string
	LogoURL     string
	Size        int
}

// Renderer draws QR codes as PNG. Output depends only on text and options,
// except for the fetched logo.
type Renderer struct {
	cfg     config.QR
	fetcher LogoFetcher
	log     *zap.Logger
}

// NewRenderer creates a renderer. A nil fetcher disables logos.
func NewRenderer(cfg config.QR, fetcher LogoFetcher, log *zap.Logger) *Renderer {
	if cfg.Size <= 0 {
		cfg.Size = 280
	}
	if cfg.LogoRatio <= 0 || cfg.LogoRatio > 0.3 {
		cfg.LogoRatio = 0.22
	}
	return &Renderer{cfg: cfg, fetcher: fetcher, log: log}
}

// ClampSize keeps a requested pixel size within [MinSize, MaxSize]; 0 means default.
func (r *Renderer) ClampSize(size int) int {
	if size <= 0 {
		return r.cfg.Size
	}
	return min(max(size, MinSize), MaxSize)
}

// Render encodes text at the highest error-correction level and returns PNG bytes.
// Logo problems never fail the render; the plain code is returned instead.
func (r *Renderer) Render(ctx context.Context, text string, opts Options) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrRender)
	}

	fg, err := parseColor(opts.FgColor, color.Black)
	if err != nil {
		return nil, fmt.Errorf("%w: foreground: %w", ErrRender, err)
	}
	bg, err := parseColor(opts.BgColor, color.White)
	if err != nil {
		return nil, fmt.Errorf("%w: background: %w", ErrRender, err)
	}
	border, err := parseColor(opts.BorderColor, color.Black)
	if err != nil {
		return nil, fmt.Errorf("%w: border: %w", ErrRender, err)
	}

	q, err := qrcode.New(text, qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	q.ForegroundColor = fg
	q.BackgroundColor = bg

	size := r.ClampSize(opts.Size)
	bw := max(r.cfg.BorderWidth, 0)
	code := q.Image(max(size-2*bw, 1))

	// рамка вокруг кода
	cb := code.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, cb.Dx()+2*bw, cb.Dy()+2*bw))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(border), image.Point{}, draw.Src)
	draw.Draw(canvas, cb.Sub(cb.Min).Add(image.Pt(bw, bw)), code, cb.Min, draw.Src)

	if opts.LogoURL != "" && r.fetcher != nil {
		r.overlayLogo(ctx, canvas, opts.LogoURL, bg)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("%w: encode png: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

// overlayLogo draws the logo into a circle at the center. On any failure canvas is left untouched.
func (r *Renderer) overlayLogo(ctx context.Context, canvas *image.RGBA, logoURL string, bg color.Color) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("logo compositing panicked, rendering plain code", zap.Any("panic", p))
		}
	}()

	if r.cfg.LogoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.LogoTimeout)
		defer cancel()
	}

	logo, err := r.fetcher.Fetch(ctx, logoURL)
	if err != nil {
		r.log.Warn("failed to fetch logo, rendering plain code", zap.String("logo_url", logoURL), zap.Error(err))
		return
	}

	side := int(float64(canvas.Bounds().Dx()) * r.cfg.LogoRatio)
	if side < 2 {
		return
	}
	composited := image.NewRGBA(canvas.Bounds())
	draw.Draw(composited, composited.Bounds(), canvas, image.Point{}, draw.Src)
	compositeLogo(composited, logo, side, bg)
	draw.Draw(canvas, canvas.Bounds(), composited, image.Point{}, draw.Src)
}

func parseColor(hex string, fallback color.Color) (color.Color, error) {
	if hex == "" {
		return fallback, nil
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}
