package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	SmallSize = ImageSize{320, 240}
	PhotoSize = ImageSize{1280, 960}
)

var (
	leafGreen  = color.RGBA{R: 46, G: 125, B: 50, A: 255}
	soilBrown  = color.RGBA{R: 96, G: 64, B: 40, A: 255}
	spotBrown  = color.RGBA{R: 110, G: 72, B: 30, A: 255}
	spotYellow = color.RGBA{R: 210, G: 190, B: 60, A: 255}
)

// LeafImage draws an elliptical green leaf on a soil background. When
// spotted is true, brown lesions with yellow halos are added.
func LeafImage(size ImageSize, spotted bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	cx, cy := float64(size.Width)/2, float64(size.Height)/2
	rx, ry := float64(size.Width)*0.42, float64(size.Height)*0.3

	for y := range size.Height {
		for x := range size.Width {
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			if dx*dx+dy*dy <= 1 {
				img.SetRGBA(x, y, leafGreen)
			} else {
				img.SetRGBA(x, y, soilBrown)
			}
		}
	}
	if spotted {
		r := max(size.Width/40, 2)
		for i := 1; i <= 5; i++ {
			sx := int(cx - rx/2 + float64(i)*rx/6)
			sy := int(cy + float64(i%3-1)*ry/3)
			drawDisc(img, sx, sy, r+r/2, spotYellow)
			drawDisc(img, sx, sy, r, spotBrown)
		}
	}
	return img
}

func drawDisc(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r && image.Pt(x, y).In(img.Rect) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// NoisyImage fills an image with deterministic per-pixel noise over a leaf
// tint. Noise defeats compression, which makes it useful for producing
// large files.
func NoisyImage(size ImageSize, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test data only
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(120))
		img.Pix[i+1] = uint8(80 + rng.Intn(176))
		img.Pix[i+2] = uint8(rng.Intn(100))
		img.Pix[i+3] = 255
	}
	return img
}

// EncodePNG encodes img as PNG.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG at the given quality.
func EncodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

// LargePhoto returns a JPEG of at least minBytes, as produced by a phone
// camera.
func LargePhoto(t *testing.T, minBytes int) []byte {
	t.Helper()
	size := PhotoSize
	for range 4 {
		data := EncodeJPEG(t, NoisyImage(size, 7), 95)
		if len(data) >= minBytes {
			return data
		}
		size = ImageSize{size.Width * 2, size.Height * 2}
	}
	t.Fatalf("could not produce a %d byte photo", minBytes)
	return nil
}

// SmallLeafPhoto returns a small JPEG of a healthy-looking leaf.
func SmallLeafPhoto(t *testing.T) []byte {
	t.Helper()
	return EncodeJPEG(t, LeafImage(SmallSize, false), 80)
}
