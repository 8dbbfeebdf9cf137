package compose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"testing"
)

func TestHighlightMask(t *testing.T) {
	words := splitWords("Dhaka Metro Rail extends service, boosting daily commute")
	tests := []struct {
		name    string
		phrases []string
		want    []bool
	}{
		{"multi-word phrase", []string{"metro rail"}, []bool{false, true, true, false, false, false, false, false}},
		{"punctuation ignored", []string{"Service"}, []bool{false, false, false, false, true, false, false, false}},
		{"partial sequence does not match", []string{"rail service"}, make([]bool, 8)},
		{"substring is not a word", []string{"rai"}, make([]bool, 8)},
		{"several phrases", []string{"Dhaka", "daily commute"}, []bool{true, false, false, false, false, false, true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := highlightMask(words, tt.phrases); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("highlightMask = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapWords(t *testing.T) {
	measure := func(s string) float64 { return float64(len(s)) }
	words := splitWords("aa bb cc dddddddddd e")

	got := wrapWords(words, 5, measure)
	want := [][]int{{0, 1}, {2}, {3}, {4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("wrapWords = %v, want %v", got, want)
	}

	if got := wrapWords(nil, 5, measure); len(got) != 0 {
		t.Errorf("expected no lines for no words, got %v", got)
	}
}

func TestCoverFit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 100))
	out := coverFit(src, 1080, 756)
	if b := out.Bounds(); b.Dx() != 1080 || b.Dy() != 756 {
		t.Errorf("coverFit bounds = %v", b)
	}
}

type fakeAssets struct {
	img   image.Image
	err   error
	calls []string
}

func (f *fakeAssets) LoadAsset(ctx context.Context, url string) (image.Image, error) {
	f.calls = append(f.calls, url)
	return f.img, f.err
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCompose_ProducesPNG(t *testing.T) {
	assets := &fakeAssets{img: solid(10, 10, color.NRGBA{A: 0x40})}
	opts := DefaultOptions()
	opts.BrandText = "Dhaka Dispatch"
	opts.LogoURL = "https://cdn/logo.png"
	opts.OverlayURL = "https://cdn/overlay.png"

	c, err := New(opts, assets)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := c.Compose(context.Background(), solid(300, 200, color.NRGBA{R: 200, A: 255}),
		"Padma Bridge toll collection crosses record high this Eid", []string{"record high"})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1080 || b.Dy() != 1350 {
		t.Errorf("canvas = %v, want 1080x1350", b)
	}
	if len(assets.calls) != 2 {
		t.Errorf("expected overlay and logo to be loaded, got %v", assets.calls)
	}
}

func TestCompose_AssetFailureFails(t *testing.T) {
	opts := DefaultOptions()
	opts.LogoURL = "https://cdn/logo.png"
	c, err := New(opts, &fakeAssets{err: errors.New("404")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Compose(context.Background(), solid(10, 10, color.Black), "Headline", nil); err == nil {
		t.Fatal("expected error when the logo cannot be loaded")
	}
}

func TestCompose_EmptyHeadline(t *testing.T) {
	c, err := New(DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Compose(context.Background(), solid(10, 10, color.Black), "   ", nil); err == nil {
		t.Fatal("expected error for empty headline")
	}
}

func TestNew_RejectsBadCanvas(t *testing.T) {
	opts := DefaultOptions()
	opts.ImageHeight = opts.Height
	if _, err := New(opts, nil); err == nil {
		t.Error("expected error when the image area covers the whole canvas")
	}
}
