package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// DefaultCompressQuality is used when the caller passes a quality of 0.
const DefaultCompressQuality = 80

// CompressJPEG decodes data (PNG, JPEG, or WebP) and re-encodes it as JPEG
// at the given quality. Quality runs 1-100; 0 selects
// DefaultCompressQuality, and out-of-range values are clamped. Transparency
// is discarded by the JPEG encoder, so images that need an explicit white
// backdrop should go through FlattenWhite instead.
func CompressJPEG(data []byte, quality int) ([]byte, error) {
	switch {
	case quality == 0:
		quality = DefaultCompressQuality
	case quality < 1:
		quality = 1
	case quality > 100:
		quality = 100
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode %s as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}
