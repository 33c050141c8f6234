// Package imaging post-processes inference results. Background-removal
// models emit transparent PNGs; FlattenWhite composites them onto an opaque
// white canvas for workflows that need JPEG output.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// jpegQuality matches the original canvas export setting (0.95).
const jpegQuality = 95

// FlattenWhite decodes data (PNG, JPEG, or WebP), composites it over an
// opaque white canvas of the same dimensions, and re-encodes as JPEG.
func FlattenWhite(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode %s as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}
