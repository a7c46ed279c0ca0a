package pipeline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tinrab/image-service/internal/domain"
)

func TestEncodeFormats(t *testing.T) {
	img := buildTestImage(32, 16)

	cases := []struct {
		token      string
		wantFormat string
		wantMIME   string
	}{
		{"png", "png", "image/png"},
		{"PNG", "png", "image/png"},
		{"jpeg", "jpeg", "image/jpeg"},
		{"jpg", "jpeg", "image/jpeg"},
		{"webp", "webp", "image/webp"},
		{"bmp", "bmp", "image/bmp"},
		{"gif", "gif", "image/gif"},
	}

	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			encoded, err := Encode(img, tc.token, nil)
			if err != nil {
				t.Fatalf("encode %s: %v", tc.token, err)
			}
			if encoded.Format != tc.wantFormat {
				t.Fatalf("expected format %s, got %s", tc.wantFormat, encoded.Format)
			}
			if encoded.MIME != tc.wantMIME {
				t.Fatalf("expected mime %s, got %s", tc.wantMIME, encoded.MIME)
			}
			if len(encoded.Bytes) == 0 {
				t.Fatal("expected non-empty payload")
			}

			decoded, err := Decode(encoded.Bytes)
			if err != nil {
				t.Fatalf("decode %s round trip: %v", tc.wantFormat, err)
			}
			if got := decoded.Bounds(); got.Dx() != 32 || got.Dy() != 16 {
				t.Fatalf("round trip changed geometry to %dx%d", got.Dx(), got.Dy())
			}
		})
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	img := buildTestImage(8, 8)

	_, err := Encode(img, "tiff", nil)
	if !errors.Is(err, domain.ErrUnsupportedOutputFormat) {
		t.Fatalf("expected ErrUnsupportedOutputFormat, got %v", err)
	}
}

func TestEncodeJPEGQualityClamped(t *testing.T) {
	img := buildTestImage(32, 16)

	atMax, err := Encode(img, "jpeg", intp(100))
	if err != nil {
		t.Fatalf("encode q=100: %v", err)
	}
	over, err := Encode(img, "jpeg", intp(150))
	if err != nil {
		t.Fatalf("encode q=150: %v", err)
	}
	if !bytes.Equal(atMax.Bytes, over.Bytes) {
		t.Fatal("expected q=150 to clamp to q=100 output")
	}

	atMin, err := Encode(img, "jpeg", intp(1))
	if err != nil {
		t.Fatalf("encode q=1: %v", err)
	}
	under, err := Encode(img, "jpeg", intp(0))
	if err != nil {
		t.Fatalf("encode q=0: %v", err)
	}
	if !bytes.Equal(atMin.Bytes, under.Bytes) {
		t.Fatal("expected q=0 to clamp to q=1 output")
	}
}

func TestEncodeJPEGQualityAffectsSize(t *testing.T) {
	img := buildTestImage(128, 128)

	low, err := Encode(img, "jpeg", intp(10))
	if err != nil {
		t.Fatalf("encode q=10: %v", err)
	}
	high, err := Encode(img, "jpeg", intp(95))
	if err != nil {
		t.Fatalf("encode q=95: %v", err)
	}
	if len(low.Bytes) >= len(high.Bytes) {
		t.Fatalf("expected q=10 payload (%d bytes) smaller than q=95 (%d bytes)",
			len(low.Bytes), len(high.Bytes))
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	img := buildTestImage(32, 16)

	for _, token := range []string{"png", "jpeg", "webp", "bmp", "gif"} {
		first, err := Encode(img, token, intp(80))
		if err != nil {
			t.Fatalf("encode %s: %v", token, err)
		}
		second, err := Encode(img, token, intp(80))
		if err != nil {
			t.Fatalf("encode %s again: %v", token, err)
		}
		if !bytes.Equal(first.Bytes, second.Bytes) {
			t.Fatalf("expected byte-identical %s output across encodes", token)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not pixels"))
	if !errors.Is(err, domain.ErrImageDecode) {
		t.Fatalf("expected ErrImageDecode, got %v", err)
	}
}

func TestNormalizeFormat(t *testing.T) {
	if format, err := NormalizeFormat(" JPG "); err != nil || format != "jpeg" {
		t.Fatalf("expected jpeg, got %q err=%v", format, err)
	}
	if _, err := NormalizeFormat("avif"); !errors.Is(err, domain.ErrUnsupportedOutputFormat) {
		t.Fatalf("expected ErrUnsupportedOutputFormat, got %v", err)
	}
}

func TestWebPLosslessRoundTrip(t *testing.T) {
	img := buildTestImage(24, 24)

	encoded, err := Encode(img, "webp", nil)
	if err != nil {
		t.Fatalf("encode webp: %v", err)
	}

	decoded, err := Decode(encoded.Bytes)
	if err != nil {
		t.Fatalf("decode webp: %v", err)
	}

	r0, g0, b0, _ := img.At(5, 5).RGBA()
	r1, g1, b1, _ := decoded.At(5, 5).RGBA()
	if r0 != r1 || g0 != g1 || b0 != b1 {
		t.Fatalf("lossless webp changed pixel (5,5): (%d,%d,%d) -> (%d,%d,%d)",
			r0>>8, g0>>8, b0>>8, r1>>8, g1>>8, b1>>8)
	}
}
