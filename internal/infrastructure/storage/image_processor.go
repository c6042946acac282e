package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// CoverHeight is the height covers are scaled down to
	CoverHeight = 900
	coverJPEGQ  = 90
)

type ImageProcessor struct {
	MaxSize int64 // bytes (default: 5MB)
}

func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{MaxSize: 5 * 1024 * 1024}
}

// ErrTooLarge and ErrFormat let callers map validation failures
var (
	ErrTooLarge = fmt.Errorf("image too large")
	ErrFormat   = fmt.Errorf("image format not allowed")
)

// ValidateImage checks size and that the bytes decode as JPEG, PNG or WebP
func (p *ImageProcessor) ValidateImage(data []byte) error {
	if int64(len(data)) > p.MaxSize {
		return fmt.Errorf("%w: exceeds %dMB", ErrTooLarge, p.MaxSize/(1024*1024))
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: not an image: %v", ErrFormat, err)
	}
	switch format {
	case "jpeg", "png", "webp":
		return nil
	default:
		return fmt.Errorf("%w: %s (only jpeg/png/webp)", ErrFormat, format)
	}
}

// NormalizeCover scales a cover down to CoverHeight (never up) keeping the
// aspect ratio and re-encodes it as JPEG quality 90.
func (p *ImageProcessor) NormalizeCover(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image: %w", err)
	}

	if img.Bounds().Dy() > CoverHeight {
		img = imaging.Resize(img, 0, CoverHeight, imaging.Lanczos)
	}

	b := new(bytes.Buffer)
	if err := jpeg.Encode(b, img, &jpeg.Options{Quality: coverJPEGQ}); err != nil {
		return nil, fmt.Errorf("cannot encode cover: %w", err)
	}
	return b.Bytes(), nil
}
