// Package pipeline implements the image transformation core: crop and resize
// geometry, filter dispatch, and output encoding. It is synchronous and
// stateless; each call owns its raster exclusively and performs no I/O.
package pipeline

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/tinrab/image-service/internal/domain"
)

// Apply runs the transformation stages in fixed order: crop, then resize,
// then filter. Cropping first avoids resampling pixels that get discarded;
// filtering last makes pixel effects act on the final geometry. The first
// failing stage aborts the rest.
func Apply(img image.Image, params domain.TransformParams) (image.Image, error) {
	if params.HasCrop() {
		cropped, err := crop(img, *params.CropX, *params.CropY, *params.CropW, *params.CropH)
		if err != nil {
			return nil, err
		}
		img = cropped
	}

	if params.HasResize() {
		resized, err := resize(img, params.Width, params.Height)
		if err != nil {
			return nil, err
		}
		img = resized
	}

	if params.HasFilter() {
		filter, err := ParseFilter(params.Filter)
		if err != nil {
			return nil, err
		}
		img = ApplyFilter(img, filter)
	}

	return img, nil
}

func crop(img image.Image, x, y, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: crop width and height must be greater than 0", domain.ErrInvalidCropDimensions)
	}
	if x < 0 || y < 0 {
		return nil, fmt.Errorf("%w: crop origin must not be negative", domain.ErrInvalidCropDimensions)
	}

	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	// Bounds are checked as x > srcW-w rather than x+w > srcW so that a huge
	// offset cannot wrap around and pass the check.
	if w > srcW || x > srcW-w || h > srcH || y > srcH-h {
		return nil, fmt.Errorf("%w: crop window is outside the image bounds", domain.ErrInvalidCropDimensions)
	}

	rect := image.Rect(bounds.Min.X+x, bounds.Min.Y+y, bounds.Min.X+x+w, bounds.Min.Y+y+h)
	return imaging.Crop(img, rect), nil
}

// resize scales img to the requested box. A missing dimension is derived from
// the current (post-crop) aspect ratio with round-to-nearest; when both are
// given the image is stretched to exactly that box. The Linear kernel is a
// triangle filter.
func resize(img image.Image, width, height *int) (image.Image, error) {
	if width != nil && *width <= 0 || height != nil && *height <= 0 {
		return nil, fmt.Errorf("%w: target resize width and height must be greater than 0", domain.ErrInvalidResizeDimensions)
	}

	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	var targetW, targetH int
	switch {
	case width != nil && height != nil:
		targetW, targetH = *width, *height
	case height != nil:
		targetH = *height
		targetW = int(math.Round(float64(targetH) * float64(srcW) / float64(srcH)))
	default:
		targetW = *width
		targetH = int(math.Round(float64(targetW) * float64(srcH) / float64(srcW)))
	}

	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("%w: resize must resolve to dimensions greater than 0", domain.ErrInvalidResizeDimensions)
	}

	return imaging.Resize(img, targetW, targetH, imaging.Linear), nil
}
