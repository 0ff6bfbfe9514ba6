// Package media decodes sticker images, builds thumbnails and renders jar
// snapshots.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DefaultThumbnailSize caps the larger side of a thumbnail, in pixels.
const DefaultThumbnailSize = 150

// Decode decodes any supported image format.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// AspectRatio returns width/height without decoding pixel data.
func AspectRatio(data []byte) (float64, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, fmt.Errorf("invalid image size %dx%d", cfg.Width, cfg.Height)
	}
	return float64(cfg.Width) / float64(cfg.Height), nil
}

// Thumbnail scales img down to fit max×max, preserving aspect ratio, and
// encodes it as PNG. Smaller images are re-encoded unchanged.
func Thumbnail(img image.Image, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultThumbnailSize
	}
	thumb := imaging.Fit(img, max, max, imaging.Lanczos)
	return EncodePNG(thumb)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes img as JPEG at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
