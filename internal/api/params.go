package api

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/tinrab/image-service/internal/domain"
	"github.com/tinrab/image-service/internal/pipeline"
)

var intFields = []string{"w", "h", "crop_x", "crop_y", "crop_w", "crop_h", "quality"}

// parseTransformQuery extracts the transform parameter set from query values.
// A present-but-unparseable numeric field is a client error, not an ignored
// one.
func parseTransformQuery(values url.Values) (domain.TransformParams, error) {
	var params domain.TransformParams

	for _, name := range intFields {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return domain.TransformParams{}, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidParameter, name, raw)
		}
		params = withIntField(params, name, parsed)
	}

	params.Filter = values.Get("filter")
	params.OutputFormat = values.Get("output_format")
	return params, nil
}

// parseTransformMultipart reads a multipart upload field by field: the
// "image" part carries the source bytes, every other known part is a
// transform parameter. Unknown parts are skipped.
func parseTransformMultipart(r *http.Request) (data []byte, filename string, params domain.TransformParams, err error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, "", domain.TransformParams{}, fmt.Errorf("%w: invalid multipart body: %v", domain.ErrInvalidParameter, err)
	}

	for {
		part, partErr := reader.NextPart()
		if partErr == io.EOF {
			break
		}
		if partErr != nil {
			return nil, "", domain.TransformParams{}, fmt.Errorf("%w: read multipart body: %v", domain.ErrInvalidParameter, partErr)
		}

		name := part.FormName()
		if name == "image" {
			if data == nil {
				filename = part.FileName()
				data, partErr = io.ReadAll(part)
				if partErr != nil {
					return nil, "", domain.TransformParams{}, fmt.Errorf("%w: read image part: %v", domain.ErrInvalidParameter, partErr)
				}
			}
			continue
		}

		value, partErr := readPartValue(part)
		if partErr != nil {
			return nil, "", domain.TransformParams{}, partErr
		}

		switch name {
		case "w", "h", "crop_x", "crop_y", "crop_w", "crop_h", "quality":
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			parsed, convErr := strconv.Atoi(value)
			if convErr != nil {
				return nil, "", domain.TransformParams{}, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidParameter, name, value)
			}
			params = withIntField(params, name, parsed)
		case "filter":
			params.Filter = value
		case "output_format":
			params.OutputFormat = value
		}
	}

	if data == nil {
		return nil, "", domain.TransformParams{}, domain.ErrMissingImageFile
	}
	return data, filename, params, nil
}

func readPartValue(part io.Reader) (string, error) {
	const maxFieldBytes = 4 << 10
	value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read multipart field: %v", domain.ErrInvalidParameter, err)
	}
	return string(value), nil
}

func withIntField(params domain.TransformParams, name string, value int) domain.TransformParams {
	v := value
	switch name {
	case "w":
		params.Width = &v
	case "h":
		params.Height = &v
	case "crop_x":
		params.CropX = &v
	case "crop_y":
		params.CropY = &v
	case "crop_w":
		params.CropW = &v
	case "crop_h":
		params.CropH = &v
	case "quality":
		params.Quality = &v
	}
	return params
}

// inferFormat guesses an output format from the source URL or filename
// extension, falling back to the pipeline default.
func inferFormat(sourceName string) string {
	name := sourceName
	if parsed, err := url.Parse(sourceName); err == nil && parsed.Path != "" {
		name = parsed.Path
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return pipeline.DefaultFormat
	}
	return ext
}
