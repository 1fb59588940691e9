package qr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// LogoFetcher loads the image referenced by a logo URL
type LogoFetcher interface {
	Fetch(ctx context.Context, logoURL string) (image.Image, error)
}

// ErrBlockedAddress is returned when a logo host resolves to a loopback,
// private, link-local or otherwise non-public address
var ErrBlockedAddress = errors.New("logo address is not public")

const maxLogoRedirects = 3

// reserved ranges that IsGlobalUnicast and IsPrivate let through
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// HTTPLogoFetcher downloads logos over http(s) with a size cap. Connections
// are only made to public addresses, checked after DNS resolution, so a
// redirect or a DNS answer cannot point it at internal services.
type HTTPLogoFetcher struct {
	client       *http.Client
	maxBytes     int64
	allowPrivate bool
}

func NewHTTPLogoFetcher(timeout time.Duration, maxBytes int64) *HTTPLogoFetcher {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	f := &HTTPLogoFetcher{maxBytes: maxBytes}

	dialer := &net.Dialer{Timeout: timeout, Control: f.checkAddress}
	f.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: timeout,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxLogoRedirects {
				return fmt.Errorf("stopped after %d redirects", maxLogoRedirects)
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
	return f
}

// checkAddress runs for every dial, including redirects, with the resolved ip:port
func (f *HTTPLogoFetcher) checkAddress(_, address string, _ syscall.RawConn) error {
	if f.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !isPublic(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

func isPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsGlobalUnicast() || ip.IsPrivate() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

func (f *HTTPLogoFetcher) Fetch(ctx context.Context, logoURL string) (image.Image, error) {
	u, err := url.Parse(logoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("unsupported logo url %q", logoURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch logo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch logo: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("logo exceeds %d bytes", f.maxBytes)
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}
	return img, nil
}

// compositeLogo scales logo to side x side and draws it through a circular mask at
// the center of dst, over a slightly larger disc of the background color.
func compositeLogo(dst *image.RGBA, logo image.Image, side int, bg color.Color) {
	b := dst.Bounds()
	center := image.Pt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
	radius := side / 2
	pad := max(side/10, 1)

	disc := &circle{p: center, r: radius + pad}
	draw.DrawMask(dst, disc.Bounds(), image.NewUniform(bg), image.Point{}, disc, disc.Bounds().Min, draw.Over)

	scaled := image.NewRGBA(image.Rect(0, 0, 2*radius, 2*radius))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), logo, logo.Bounds(), xdraw.Over, nil)

	mask := &circle{p: center, r: radius}
	draw.DrawMask(dst, mask.Bounds(), scaled, image.Point{}, mask, mask.Bounds().Min, draw.Over)
}

// circle is an alpha mask: opaque inside the radius, transparent outside
type circle struct {
	p image.Point
	r int
}

func (c *circle) ColorModel() color.Model {
	return color.AlphaModel
}

func (c *circle) Bounds() image.Rectangle {
	return image.Rect(c.p.X-c.r, c.p.Y-c.r, c.p.X+c.r, c.p.Y+c.r)
}

func (c *circle) At(x, y int) color.Color {
	xx, yy, rr := float64(x-c.p.X)+0.5, float64(y-c.p.Y)+0.5, float64(c.r)
	if xx*xx+yy*yy < rr*rr {
		return color.Alpha{A: 255}
	}
	return color.Alpha{A: 0}
}
