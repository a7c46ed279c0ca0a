package pipeline

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"

	"github.com/tinrab/image-service/internal/domain"
)

type FilterKind int

const (
	FilterGrayscale FilterKind = iota
	FilterInvert
	FilterBlur
	FilterSharpen
	FilterBrighten
	FilterContrast
)

// Filter is a parsed, validated filter spec. Only the fields belonging to the
// kind are meaningful.
type Filter struct {
	Kind FilterKind

	// Sigma is the Gaussian radius for blur and sharpen.
	Sigma float64
	// Threshold is the minimum channel difference amplified by sharpen.
	Threshold int
	// Brightness is the value added to each channel by brighten.
	Brightness int
	// Contrast is the percentage passed to the contrast curve.
	Contrast float64
}

const (
	defaultBlurSigma    = 1.0
	defaultSharpenSigma = 1.0
	defaultBrighten     = 10
	defaultContrast     = 10.0
)

// ParseFilter parses a colon-delimited filter string, "name[:arg1[:arg2]]",
// into a Filter. This is the only place the string is split; everything
// downstream works with the typed form.
func ParseFilter(spec string) (Filter, error) {
	parts := strings.Split(spec, ":")
	name := strings.ToLower(strings.TrimSpace(parts[0]))
	args := parts[1:]

	switch name {
	case "grayscale":
		return Filter{Kind: FilterGrayscale}, nil
	case "invert":
		return Filter{Kind: FilterInvert}, nil
	case "blur":
		sigma, err := floatArg(args, 0, defaultBlurSigma, "blur sigma")
		if err != nil {
			return Filter{}, err
		}
		return Filter{Kind: FilterBlur, Sigma: sigma}, nil
	case "sharpen":
		sigma, err := floatArg(args, 0, defaultSharpenSigma, "sharpen sigma")
		if err != nil {
			return Filter{}, err
		}
		threshold, err := intArg(args, 1, 0, "sharpen threshold")
		if err != nil {
			return Filter{}, err
		}
		return Filter{Kind: FilterSharpen, Sigma: sigma, Threshold: threshold}, nil
	case "brighten":
		value, err := intArg(args, 0, defaultBrighten, "brighten value")
		if err != nil {
			return Filter{}, err
		}
		return Filter{Kind: FilterBrighten, Brightness: value}, nil
	case "contrast":
		value, err := floatArg(args, 0, defaultContrast, "contrast value")
		if err != nil {
			return Filter{}, err
		}
		return Filter{Kind: FilterContrast, Contrast: value}, nil
	default:
		return Filter{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFilter, name)
	}
}

func floatArg(args []string, index int, fallback float64, label string) (float64, error) {
	if index >= len(args) {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(args[index]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidFilterParameters, label, args[index])
	}
	return value, nil
}

func intArg(args []string, index int, fallback int, label string) (int, error) {
	if index >= len(args) {
		return fallback, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(args[index]))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidFilterParameters, label, args[index])
	}
	return value, nil
}

// ApplyFilter runs the pixel operation for a parsed filter. All argument
// validation happens at parse time, so application cannot fail.
func ApplyFilter(img image.Image, filter Filter) image.Image {
	switch filter.Kind {
	case FilterGrayscale:
		return imaging.Grayscale(img)
	case FilterInvert:
		return imaging.Invert(img)
	case FilterBlur:
		return imaging.Blur(img, filter.Sigma)
	case FilterSharpen:
		return unsharpen(img, filter.Sigma, filter.Threshold)
	case FilterBrighten:
		// AdjustBrightness takes a percentage of the full channel range, so an
		// absolute 8-bit delta converts as value*100/255.
		return imaging.AdjustBrightness(img, float64(filter.Brightness)*100.0/255.0)
	case FilterContrast:
		return imaging.AdjustContrast(img, filter.Contrast)
	default:
		return img
	}
}

// unsharpen applies an unsharp mask: blur by sigma, then amplify pixels that
// differ from the original by more than threshold (an 8-bit channel delta;
// gift expects it normalized to [0,1]).
func unsharpen(img image.Image, sigma float64, threshold int) image.Image {
	g := gift.New(gift.UnsharpMask(float32(sigma), 1.0, float32(threshold)/255.0))
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}
