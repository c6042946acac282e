package storage

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidateImage(t *testing.T) {
	p := NewImageProcessor()

	assert.NoError(t, p.ValidateImage(pngBytes(t, 10, 20)))

	err := p.ValidateImage([]byte("definitely not an image"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat))

	small := &ImageProcessor{MaxSize: 16}
	err = small.ValidateImage(pngBytes(t, 50, 50))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestNormalizeCover(t *testing.T) {
	p := NewImageProcessor()

	out, err := p.NormalizeCover(pngBytes(t, 600, 1800))
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, CoverHeight, cfg.Height)
	assert.Equal(t, 300, cfg.Width)

	out, err = p.NormalizeCover(pngBytes(t, 100, 150))
	require.NoError(t, err)
	cfg, _, err = image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Height)
}
