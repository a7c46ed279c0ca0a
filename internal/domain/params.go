package domain

import "strings"

// TransformParams is the structured parameter set crossing the orchestrator
// boundary into the pipeline. Pointer fields distinguish "absent" from zero,
// since an explicit zero must be rejected rather than ignored.
type TransformParams struct {
	Width  *int `json:"w,omitempty"`
	Height *int `json:"h,omitempty"`

	CropX *int `json:"crop_x,omitempty"`
	CropY *int `json:"crop_y,omitempty"`
	CropW *int `json:"crop_w,omitempty"`
	CropH *int `json:"crop_h,omitempty"`

	Filter       string `json:"filter,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	Quality      *int   `json:"quality,omitempty"`
}

// HasCrop reports whether a crop was requested. The crop fields are
// all-or-none; a partial set is ignored.
func (p TransformParams) HasCrop() bool {
	return p.CropX != nil && p.CropY != nil && p.CropW != nil && p.CropH != nil
}

// HasResize reports whether a resize was requested with at least one target
// dimension.
func (p TransformParams) HasResize() bool {
	return p.Width != nil || p.Height != nil
}

// HasFilter reports whether a non-empty filter spec was supplied.
func (p TransformParams) HasFilter() bool {
	return strings.TrimSpace(p.Filter) != ""
}

// IsZero reports whether no transformation at all was requested.
func (p TransformParams) IsZero() bool {
	return !p.HasCrop() && !p.HasResize() && !p.HasFilter() &&
		p.OutputFormat == "" && p.Quality == nil
}
