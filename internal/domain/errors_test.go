package domain

import (
	"fmt"
	"testing"
)

func TestIsValidationError(t *testing.T) {
	for _, err := range []error{
		ErrInvalidCropDimensions,
		ErrInvalidResizeDimensions,
		ErrInvalidFilterParameters,
		ErrUnsupportedFilter,
		ErrUnsupportedOutputFormat,
		ErrMissingImageFile,
		ErrInvalidParameter,
	} {
		if !IsValidationError(err) {
			t.Fatalf("expected %v to be a validation error", err)
		}
		wrapped := fmt.Errorf("%w: extra context", err)
		if !IsValidationError(wrapped) {
			t.Fatalf("expected wrapped %v to be a validation error", err)
		}
	}

	for _, err := range []error{ErrImageDecode, ErrImageProcessing, ErrImageFetch, nil} {
		if IsValidationError(err) {
			t.Fatalf("expected %v not to be a validation error", err)
		}
	}
}
