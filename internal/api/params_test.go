package api

import (
	"errors"
	"net/url"
	"testing"

	"github.com/tinrab/image-service/internal/domain"
)

func TestParseTransformQuery(t *testing.T) {
	values := url.Values{}
	values.Set("w", "120")
	values.Set("crop_x", "10")
	values.Set("crop_y", "20")
	values.Set("crop_w", "30")
	values.Set("crop_h", "40")
	values.Set("quality", "85")
	values.Set("filter", "blur:2")
	values.Set("output_format", "webp")

	params, err := parseTransformQuery(values)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}

	if params.Width == nil || *params.Width != 120 {
		t.Fatalf("expected w=120, got %v", params.Width)
	}
	if params.Height != nil {
		t.Fatalf("expected h to be absent, got %v", params.Height)
	}
	if !params.HasCrop() {
		t.Fatal("expected a complete crop set")
	}
	if *params.CropX != 10 || *params.CropY != 20 || *params.CropW != 30 || *params.CropH != 40 {
		t.Fatalf("crop fields wrong: %+v", params)
	}
	if params.Quality == nil || *params.Quality != 85 {
		t.Fatalf("expected quality=85, got %v", params.Quality)
	}
	if params.Filter != "blur:2" || params.OutputFormat != "webp" {
		t.Fatalf("string fields wrong: %+v", params)
	}
}

func TestParseTransformQueryRejectsNonInteger(t *testing.T) {
	for _, field := range intFields {
		t.Run(field, func(t *testing.T) {
			values := url.Values{}
			values.Set(field, "abc")
			_, err := parseTransformQuery(values)
			if !errors.Is(err, domain.ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter for %s=abc, got %v", field, err)
			}
		})
	}
}

func TestParseTransformQueryIgnoresEmptyFields(t *testing.T) {
	values := url.Values{}
	values.Set("w", "  ")
	values.Set("h", "")

	params, err := parseTransformQuery(values)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if params.Width != nil || params.Height != nil {
		t.Fatalf("expected blank fields to be absent, got %+v", params)
	}
}

func TestInferFormat(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{"https://example.com/images/cat.JPG?size=big", "jpg"},
		{"https://example.com/images/cat.png", "png"},
		{"photo.webp", "webp"},
		{"https://example.com/images/cat", "png"},
		{"", "png"},
	}

	for _, tc := range cases {
		if got := inferFormat(tc.source); got != tc.want {
			t.Fatalf("inferFormat(%q) = %q, want %q", tc.source, got, tc.want)
		}
	}
}
