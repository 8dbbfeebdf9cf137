// Package compose renders the branded social card for one story.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// AssetLoader fetches brand assets such as the logo and overlay.
type AssetLoader interface {
	LoadAsset(ctx context.Context, url string) (image.Image, error)
}

type Options struct {
	Width       int
	Height      int
	ImageHeight int // top area covered by the story image

	HeadlineSize    float64
	MinHeadlineSize float64
	BrandSize       float64
	Padding         float64

	Background color.Color
	TextColor  color.Color
	Highlight  color.Color

	BrandText  string
	LogoURL    string
	OverlayURL string
	LogoHeight int
}

func DefaultOptions() Options {
	return Options{
		Width:           1080,
		Height:          1350,
		ImageHeight:     756,
		HeadlineSize:    68,
		MinHeadlineSize: 36,
		BrandSize:       30,
		Padding:         56,
		Background:      color.NRGBA{R: 0x0B, G: 0x1E, B: 0x3F, A: 0xFF},
		TextColor:       color.White,
		Highlight:       color.NRGBA{R: 0xFF, G: 0xC8, B: 0x2E, A: 0xFF},
		LogoHeight:      96,
	}
}

type Composer struct {
	opts    Options
	assets  AssetLoader
	bold    *truetype.Font
	regular *truetype.Font
}

func New(opts Options, assets AssetLoader) (*Composer, error) {
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing headline font: %w", err)
	}
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing brand font: %w", err)
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.ImageHeight <= 0 || opts.ImageHeight >= opts.Height {
		return nil, fmt.Errorf("invalid canvas %dx%d with image height %d", opts.Width, opts.Height, opts.ImageHeight)
	}
	if (opts.LogoURL != "" || opts.OverlayURL != "") && assets == nil {
		return nil, fmt.Errorf("brand assets configured without an asset loader")
	}
	return &Composer{opts: opts, assets: assets, bold: bold, regular: regular}, nil
}

// Compose draws the story image, overlay, headline and branding and returns
// PNG bytes.
func (c *Composer) Compose(ctx context.Context, img image.Image, headline string, highlights []string) ([]byte, error) {
	o := c.opts
	W, H := float64(o.Width), float64(o.Height)

	dc := gg.NewContext(o.Width, o.Height)
	dc.SetColor(o.Background)
	dc.DrawRectangle(0, 0, W, H)
	dc.Fill()

	if img != nil {
		dc.DrawImage(coverFit(img, o.Width, o.ImageHeight), 0, 0)
	}

	if o.OverlayURL != "" {
		overlay, err := c.assets.LoadAsset(ctx, o.OverlayURL)
		if err != nil {
			return nil, fmt.Errorf("loading overlay: %w", err)
		}
		dc.DrawImage(stretch(overlay, o.Width, o.Height), 0, 0)
	}

	if err := c.drawHeadline(dc, headline, highlights); err != nil {
		return nil, err
	}

	if o.LogoURL != "" {
		logo, err := c.assets.LoadAsset(ctx, o.LogoURL)
		if err != nil {
			return nil, fmt.Errorf("loading logo: %w", err)
		}
		dc.DrawImage(scaleToHeight(logo, o.LogoHeight), int(o.Padding*0.7), int(o.Padding*0.7))
	}

	if o.BrandText != "" {
		dc.SetFontFace(truetype.NewFace(c.regular, &truetype.Options{Size: o.BrandSize}))
		dc.SetColor(o.TextColor)
		dc.DrawStringAnchored(o.BrandText, W-o.Padding, H-o.Padding*0.7, 1, 0)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Composer) drawHeadline(dc *gg.Context, headline string, highlights []string) error {
	o := c.opts
	words := splitWords(headline)
	if len(words) == 0 {
		return fmt.Errorf("headline is empty")
	}
	mask := highlightMask(words, highlights)

	maxWidth := float64(o.Width) - 2*o.Padding
	top := float64(o.ImageHeight) + o.Padding
	// leave room for the brand line
	maxHeight := float64(o.Height) - top - o.Padding*2

	// Shrink the font until the wrapped headline fits the text area.
	var (
		face       font.Face
		lines      [][]int
		lineHeight float64
	)
	for size := o.HeadlineSize; ; size -= 4 {
		if size < o.MinHeadlineSize {
			size = o.MinHeadlineSize
		}
		face = truetype.NewFace(c.bold, &truetype.Options{Size: size})
		dc.SetFontFace(face)
		lines = wrapWords(words, maxWidth, func(s string) float64 {
			w, _ := dc.MeasureString(s)
			return w
		})
		lineHeight = size * 1.25
		if float64(len(lines))*lineHeight <= maxHeight || size == o.MinHeadlineSize {
			break
		}
	}

	spaceWidth, _ := dc.MeasureString(" ")
	y := top + lineHeight*0.8
	for _, line := range lines {
		x := o.Padding
		for _, idx := range line {
			if mask[idx] {
				dc.SetColor(o.Highlight)
			} else {
				dc.SetColor(o.TextColor)
			}
			dc.DrawString(words[idx], x, y)
			w, _ := dc.MeasureString(words[idx])
			x += w + spaceWidth
		}
		y += lineHeight
	}
	return nil
}

// coverFit scales img to fill w×h, cropping the overflow around the centre.
func coverFit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	scale := float64(w) / iw
	if s := float64(h) / ih; s > scale {
		scale = s
	}

	cropW, cropH := float64(w)/scale, float64(h)/scale
	x0 := b.Min.X + int((iw-cropW)/2)
	y0 := b.Min.Y + int((ih-cropH)/2)
	src := image.Rect(x0, y0, x0+int(cropW+0.5), y0+int(cropH+0.5)).Intersect(b)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

func stretch(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func scaleToHeight(img image.Image, h int) image.Image {
	b := img.Bounds()
	if b.Dy() == 0 || h <= 0 {
		return img
	}
	w := b.Dx() * h / b.Dy()
	if w < 1 {
		w = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
