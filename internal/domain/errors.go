package domain

import "errors"

// Validation errors abort the pipeline before any pixel work happens. The API
// layer maps them to 4xx responses.
var (
	ErrInvalidCropDimensions   = errors.New("invalid crop dimensions")
	ErrInvalidResizeDimensions = errors.New("invalid resize dimensions")
	ErrInvalidFilterParameters = errors.New("invalid filter parameters")
	ErrUnsupportedFilter       = errors.New("unsupported filter type")
	ErrUnsupportedOutputFormat = errors.New("unsupported output format")
	ErrMissingImageFile        = errors.New("no image file found in upload")
	ErrInvalidParameter        = errors.New("invalid request parameter")
)

// Processing and transport errors. Decode failures mean the source bytes were
// not a usable image; processing failures are opaque faults in the underlying
// raster library; fetch failures come from the upstream image server.
var (
	ErrImageDecode     = errors.New("image decode failed")
	ErrImageProcessing = errors.New("image processing failed")
	ErrImageFetch      = errors.New("image fetch failed")
)

var validationErrors = []error{
	ErrInvalidCropDimensions,
	ErrInvalidResizeDimensions,
	ErrInvalidFilterParameters,
	ErrUnsupportedFilter,
	ErrUnsupportedOutputFormat,
	ErrMissingImageFile,
	ErrInvalidParameter,
}

// IsValidationError reports whether err belongs to the closed set of
// client-input errors.
func IsValidationError(err error) bool {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
