package qr

import (
	"QRLinks-Backend/internal/config"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testQRConfig() config.QR {
	return config.QR{
		Size:         256,
		BorderWidth:  8,
		LogoRatio:    0.22,
		LogoTimeout:  time.Second,
		LogoMaxBytes: 1 << 20,
	}
}

type stubFetcher struct {
	img   image.Image
	err   error
	panic bool
	calls int
}

func (f *stubFetcher) Fetch(context.Context, string) (image.Image, error) {
	f.calls++
	if f.panic {
		panic("decoder exploded")
	}
	return f.img, f.err
}

func solid(c color.Color, size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func sameRGB(a, b color.Color) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	return ar>>8 == br>>8 && ag>>8 == bg>>8 && ab>>8 == bb>>8
}

var fixed = Options{FgColor: "#112233", BgColor: "#FFFFFF", BorderColor: "#FF0000", Size: 256}

func TestRender_Deterministic(t *testing.T) {
	r := NewRenderer(testQRConfig(), nil, zap.NewNop())
	ctx := context.Background()

	a, err := r.Render(ctx, "http://x/r/abc", fixed)
	require.NoError(t, err)
	b, err := r.Render(ctx, "http://x/r/abc", fixed)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := r.Render(ctx, "http://x/r/abd", fixed)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestRender_ColorsAndBorder(t *testing.T) {
	r := NewRenderer(testQRConfig(), nil, zap.NewNop())
	data, err := r.Render(context.Background(), "http://x/r/abc", fixed)
	require.NoError(t, err)

	img := decode(t, data)
	assert.GreaterOrEqual(t, img.Bounds().Dx(), 256)
	assert.True(t, sameRGB(img.At(0, 0), color.RGBA{R: 0xFF, A: 0xFF}), "border")

	fgSeen, bgSeen := false, false
	for y := img.Bounds().Min.Y + 8; y < img.Bounds().Max.Y-8; y++ {
		for x := img.Bounds().Min.X + 8; x < img.Bounds().Max.X-8; x++ {
			c := img.At(x, y)
			fgSeen = fgSeen || sameRGB(c, color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xFF})
			bgSeen = bgSeen || sameRGB(c, color.White)
		}
	}
	assert.True(t, fgSeen)
	assert.True(t, bgSeen)
}

func TestRender_Errors(t *testing.T) {
	r := NewRenderer(testQRConfig(), nil, zap.NewNop())

	_, err := r.Render(context.Background(), "", fixed)
	assert.ErrorIs(t, err, ErrRender)

	_, err = r.Render(context.Background(), "http://x/r/abc", Options{FgColor: "purple"})
	assert.ErrorIs(t, err, ErrRender)
}

func TestRender_LogoIsComposited(t *testing.T) {
	logoColor := color.RGBA{G: 0xFF, A: 0xFF}
	fetcher := &stubFetcher{img: solid(logoColor, 64)}
	r := NewRenderer(testQRConfig(), fetcher, zap.NewNop())

	opts := fixed
	opts.LogoURL = "https://logo.example/logo.png"
	data, err := r.Render(context.Background(), "http://x/r/abc", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)

	img := decode(t, data)
	b := img.Bounds()
	center := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
	assert.True(t, sameRGB(center, logoColor))

	// corners of the logo square stay outside the circular mask
	side := int(float64(b.Dx()) * 0.22)
	corner := img.At(b.Min.X+b.Dx()/2-side/2+1, b.Min.Y+b.Dy()/2-side/2+1)
	assert.False(t, sameRGB(corner, logoColor))
}

func TestRender_LogoFailureFallsBackToPlain(t *testing.T) {
	plain, err := NewRenderer(testQRConfig(), nil, zap.NewNop()).Render(context.Background(), "http://x/r/abc", fixed)
	require.NoError(t, err)

	opts := fixed
	opts.LogoURL = "https://logo.example/logo.png"

	for name, fetcher := range map[string]*stubFetcher{
		"fetch error": {err: errors.New("timeout")},
		"panic":       {panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			r := NewRenderer(testQRConfig(), fetcher, zap.NewNop())
			data, err := r.Render(context.Background(), "http://x/r/abc", opts)
			require.NoError(t, err)
			assert.Equal(t, plain, data)
		})
	}
}

func TestClampSize(t *testing.T) {
	r := NewRenderer(testQRConfig(), nil, zap.NewNop())
	assert.Equal(t, 256, r.ClampSize(0))
	assert.Equal(t, MinSize, r.ClampSize(10))
	assert.Equal(t, MaxSize, r.ClampSize(5000))
	assert.Equal(t, 300, r.ClampSize(300))
}

func TestHTTPLogoFetcher(t *testing.T) {
	var logo bytes.Buffer
	require.NoError(t, png.Encode(&logo, solid(color.Black, 16)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/logo.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(logo.Bytes())
		case "/big.png":
			_, _ = w.Write(make([]byte, 4096))
		case "/text":
			_, _ = w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPLogoFetcher(time.Second, 1024)
	f.allowPrivate = true
	ctx := context.Background()

	img, err := f.Fetch(ctx, srv.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	_, err = f.Fetch(ctx, srv.URL+"/big.png")
	assert.ErrorContains(t, err, "exceeds")

	_, err = f.Fetch(ctx, srv.URL+"/text")
	assert.ErrorContains(t, err, "decode")

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")

	_, err = f.Fetch(ctx, "file:///etc/passwd")
	assert.ErrorContains(t, err, "unsupported")
}

func TestHTTPLogoFetcher_RefusesNonPublicAddresses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	f := NewHTTPLogoFetcher(time.Second, 1024)
	for _, target := range []string{
		srv.URL + "/logo.png",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.1/logo.png",
		"http://[::1]:8080/logo.png",
		"http://0.0.0.0/logo.png",
	} {
		_, err := f.Fetch(context.Background(), target)
		assert.ErrorIs(t, err, ErrBlockedAddress, target)
	}
	assert.Zero(t, hits.Load())
}

func TestRender_InternalLogoFallsBackToPlain(t *testing.T) {
	var logo bytes.Buffer
	require.NoError(t, png.Encode(&logo, solid(color.Black, 16)))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(logo.Bytes())
	}))
	defer srv.Close()

	plain, err := NewRenderer(testQRConfig(), nil, zap.NewNop()).Render(context.Background(), "http://x/r/abc", fixed)
	require.NoError(t, err)

	opts := fixed
	opts.LogoURL = srv.URL + "/logo.png"
	r := NewRenderer(testQRConfig(), NewHTTPLogoFetcher(time.Second, 1<<20), zap.NewNop())
	data, err := r.Render(context.Background(), "http://x/r/abc", opts)
	require.NoError(t, err)
	assert.Equal(t, plain, data)
	assert.Zero(t, hits.Load())
}

func TestIsPublic(t *testing.T) {
	tests := map[string]bool{
		"93.184.216.34":        true,
		"2606:4700::1111":      true,
		"127.0.0.1":            false,
		"10.1.2.3":             false,
		"172.16.0.9":           false,
		"192.168.1.1":          false,
		"169.254.169.254":      false,
		"100.64.0.1":           false,
		"0.0.0.0":              false,
		"224.0.0.1":            false,
		"::1":                  false,
		"fe80::1":              false,
		"fd00::1":              false,
		"::ffff:127.0.0.1":     false,
		"::ffff:93.184.216.34": true,
	}
	for raw, want := range tests {
		assert.Equal(t, want, isPublic(netip.MustParseAddr(raw)), raw)
	}
}
