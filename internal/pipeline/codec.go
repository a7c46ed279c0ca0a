package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/tinrab/image-service/internal/domain"

	// WebP sources are decodable even though stdlib image does not register it.
	_ "golang.org/x/image/webp"
)

// Encoded is a finished transformation result, ready for transport.
type Encoded struct {
	Bytes  []byte
	MIME   string
	Format string
}

const (
	defaultJPEGQuality = 80
	// DefaultFormat is used when the orchestrator cannot infer an output
	// format from the source name.
	DefaultFormat = "png"
)

// Decode turns source bytes into an in-memory raster. PNG, JPEG, GIF, BMP,
// TIFF and WebP sources are recognized.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageDecode, err)
	}
	return img, nil
}

// NormalizeFormat lower-cases and resolves an output format token, folding
// the jpg alias into jpeg. Unknown tokens are an unsupported-format error.
func NormalizeFormat(token string) (string, error) {
	switch format := strings.ToLower(strings.TrimSpace(token)); format {
	case "png", "jpeg", "webp", "bmp", "gif":
		return format, nil
	case "jpg":
		return "jpeg", nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedOutputFormat, token)
	}
}

// Encode serializes img into the requested output format. The format token is
// case-insensitive. Quality applies to JPEG only (default 80, clamped to
// [1,100]) and is silently ignored for formats that do not use it.
func Encode(img image.Image, formatToken string, quality *int) (Encoded, error) {
	format, err := NormalizeFormat(formatToken)
	if err != nil {
		return Encoded{}, err
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return Encoded{}, encodeError("png", err)
		}
		return Encoded{Bytes: buf.Bytes(), MIME: "image/png", Format: "png"}, nil
	case "jpeg":
		q := clampQuality(quality)
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return Encoded{}, encodeError("jpeg", err)
		}
		return Encoded{Bytes: buf.Bytes(), MIME: "image/jpeg", Format: "jpeg"}, nil
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return Encoded{}, encodeError("webp", err)
		}
		return Encoded{Bytes: buf.Bytes(), MIME: "image/webp", Format: "webp"}, nil
	case "bmp":
		if err := imaging.Encode(&buf, img, imaging.BMP); err != nil {
			return Encoded{}, encodeError("bmp", err)
		}
		return Encoded{Bytes: buf.Bytes(), MIME: "image/bmp", Format: "bmp"}, nil
	case "gif":
		if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
			return Encoded{}, encodeError("gif", err)
		}
		return Encoded{Bytes: buf.Bytes(), MIME: "image/gif", Format: "gif"}, nil
	default:
		return Encoded{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedOutputFormat, formatToken)
	}
}

func encodeError(format string, err error) error {
	return fmt.Errorf("%w: encode %s: %v", domain.ErrImageProcessing, format, err)
}

func clampQuality(quality *int) int {
	if quality == nil {
		return defaultJPEGQuality
	}
	q := *quality
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
