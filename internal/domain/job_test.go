package domain

import "testing"

func intp(v int) *int {
	return &v
}

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		SourceType: SourceTypeURL,
		SourceURL:  "https://example.com/cat.png",
		Params:     TransformParams{Width: intp(100)},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := []struct {
		name string
		req  CreateJobRequest
	}{
		{
			"missing source_type",
			CreateJobRequest{Params: TransformParams{Width: intp(100)}},
		},
		{
			"unknown source_type",
			CreateJobRequest{SourceType: "ftp", Params: TransformParams{Width: intp(100)}},
		},
		{
			"url source without source_url",
			CreateJobRequest{SourceType: SourceTypeURL, Params: TransformParams{Width: intp(100)}},
		},
		{
			"relative source_url",
			CreateJobRequest{
				SourceType: SourceTypeURL,
				SourceURL:  "/images/cat.png",
				Params:     TransformParams{Width: intp(100)},
			},
		},
		{
			"empty params",
			CreateJobRequest{SourceType: SourceTypeURL, SourceURL: "https://example.com/cat.png"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.req.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateJobRequestValidatePresignedNeedsNoURL(t *testing.T) {
	req := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Params:     TransformParams{Filter: "grayscale"},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid presigned request, got %v", err)
	}
}
