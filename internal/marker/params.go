package marker

import "fmt"

// HSVRange is an inclusive lower/upper bound in OpenCV HSV space
// (H 0-179, S 0-255, V 0-255).
type HSVRange struct {
	Lower [3]float64 `yaml:"lower"`
	Upper [3]float64 `yaml:"upper"`
}

// Contains reports whether an HSV triple lies inside the range.
func (r HSVRange) Contains(h, s, v float64) bool {
	return h >= r.Lower[0] && h <= r.Upper[0] &&
		s >= r.Lower[1] && s <= r.Upper[1] &&
		v >= r.Lower[2] && v <= r.Upper[2]
}

// DistanceMode names the rule used to accept a green candidate for a red marker.
type DistanceMode string

const (
	// DistancePerimeterWindow accepts centers between perimeter/NearDivisor
	// and perimeter/FarDivisor of the red marker.
	DistancePerimeterWindow DistanceMode = "perimeter-window"
	// DistanceWidthMultiple accepts centers up to WidthFactor times the red
	// marker's width away.
	DistanceWidthMultiple DistanceMode = "width-multiple"
)

// Calibrated distance constants for both policies.
const (
	DefaultNearDivisor = 3.5
	DefaultFarDivisor  = 2.5
	DefaultWidthFactor = 3.2
)

// DistancePolicy decides whether two marker centers are a plausible pair.
// Only the constants of the active Mode are consulted.
type DistancePolicy struct {
	Mode        DistanceMode `yaml:"mode"`
	NearDivisor float64      `yaml:"near_divisor"` // perimeter-window: reject d < perimeter/NearDivisor
	FarDivisor  float64      `yaml:"far_divisor"`  // perimeter-window: reject d > perimeter/FarDivisor
	WidthFactor float64      `yaml:"width_factor"` // width-multiple: reject d > WidthFactor*width
}

// PerimeterWindow returns the policy that brackets the center distance
// between perimeter/near and perimeter/far.
func PerimeterWindow(near, far float64) DistancePolicy {
	return DistancePolicy{Mode: DistancePerimeterWindow, NearDivisor: near, FarDivisor: far}
}

// WidthMultiple returns the policy that only caps the center distance at
// factor times the red marker width.
func WidthMultiple(factor float64) DistancePolicy {
	return DistancePolicy{Mode: DistanceWidthMultiple, WidthFactor: factor}
}

// Eligible reports whether green may be paired with red under this policy.
func (p DistancePolicy) Eligible(red, green ContourInfo) bool {
	d := red.Center.Distance(green.Center)
	switch p.Mode {
	case DistancePerimeterWindow:
		if d > red.Perimeter/p.FarDivisor {
			return false // too far
		}
		if d < red.Perimeter/p.NearDivisor {
			return false // too close
		}
		return true
	case DistanceWidthMultiple:
		return d <= p.WidthFactor*red.Width
	default:
		return false
	}
}

// Validate checks that the policy's constants are usable.
func (p DistancePolicy) Validate() error {
	switch p.Mode {
	case DistancePerimeterWindow:
		if p.NearDivisor <= 0 || p.FarDivisor <= 0 {
			return fmt.Errorf("perimeter window divisors must be positive: near=%g far=%g", p.NearDivisor, p.FarDivisor)
		}
		if p.FarDivisor >= p.NearDivisor {
			return fmt.Errorf("perimeter window is empty: far divisor %g must be below near divisor %g", p.FarDivisor, p.NearDivisor)
		}
	case DistanceWidthMultiple:
		if p.WidthFactor <= 0 {
			return fmt.Errorf("width factor must be positive: %g", p.WidthFactor)
		}
	default:
		return fmt.Errorf("unknown distance mode %q", p.Mode)
	}
	return nil
}

func (p DistancePolicy) String() string {
	switch p.Mode {
	case DistancePerimeterWindow:
		return fmt.Sprintf("perimeter/%.1f..perimeter/%.1f", p.NearDivisor, p.FarDivisor)
	case DistanceWidthMultiple:
		return fmt.Sprintf("<= %.1f x width", p.WidthFactor)
	default:
		return string(p.Mode)
	}
}

// DetectionParams holds every tunable of the pipeline.
// See DefaultParams for the values the markers were calibrated with.
type DetectionParams struct {
	// Color segmentation
	MaskBlurKernel int        `yaml:"mask_blur_kernel"` // Gaussian kernel before HSV conversion
	RedRanges      []HSVRange `yaml:"red_ranges"`       // Union; red wraps around hue 0
	GreenRanges    []HSVRange `yaml:"green_ranges"`

	// Marker contours
	SobelKernel     int     `yaml:"sobel_kernel"`
	EdgeThreshold   float64 `yaml:"edge_threshold"`    // On the 0-255 normalised gradient magnitude
	MinAreaFraction float64 `yaml:"min_area_fraction"` // Exclusive, of frame area
	MaxAreaFraction float64 `yaml:"max_area_fraction"` // Exclusive, of frame area
	AspectMin       float64 `yaml:"aspect_min"`        // Exclusive, bounding box w/h
	AspectMax       float64 `yaml:"aspect_max"`        // Exclusive, bounding box w/h

	// Pairing
	Distance DistancePolicy `yaml:"distance"`

	// Cell decoding
	CellBlurKernel     int     `yaml:"cell_blur_kernel"`
	ThresholdBlockSize int     `yaml:"threshold_block_size"`
	ThresholdC         float64 `yaml:"threshold_c"`
	CellMinArea        float64 `yaml:"cell_min_area"`
	CellMaxArea        float64 `yaml:"cell_max_area"`
	CellMinInfluence   float64 `yaml:"cell_min_influence"` // Blob area / crop area
	CellBorderMargin   int     `yaml:"cell_border_margin"` // Blobs must stay strictly inside this margin
	SquareAspectMin    float64 `yaml:"square_aspect_min"`
	SquareAspectMax    float64 `yaml:"square_aspect_max"`
	SquareMinAreaRatio float64 `yaml:"square_min_area_ratio"` // Square blobs are frame artifacts above this ratio
	NarrowAreaRatio    float64 `yaml:"narrow_area_ratio"`     // Single vertical blob: '1' below, '5' at or above
	RelationHigh       float64 `yaml:"relation_high"`         // Two blobs: area0/area1 above this
	RelationLow        float64 `yaml:"relation_low"`          // Two blobs: area0/area1 below this
}

// DefaultParams returns the parameters the printed markers are tuned for.
func DefaultParams() DetectionParams {
	return DetectionParams{
		MaskBlurKernel: 7,
		RedRanges: []HSVRange{
			{Lower: [3]float64{0, 50, 50}, Upper: [3]float64{10, 255, 255}},
			{Lower: [3]float64{150, 50, 50}, Upper: [3]float64{179, 255, 255}},
		},
		GreenRanges: []HSVRange{
			{Lower: [3]float64{30, 55, 55}, Upper: [3]float64{90, 255, 255}},
		},

		SobelKernel:     11,
		EdgeThreshold:   30,
		MinAreaFraction: 0.01,
		MaxAreaFraction: 0.25,
		AspectMin:       0.5,
		AspectMax:       1.3,

		// Constants for both policies are set; Mode picks the active one
		Distance: DistancePolicy{
			Mode:        DistanceWidthMultiple,
			NearDivisor: DefaultNearDivisor,
			FarDivisor:  DefaultFarDivisor,
			WidthFactor: DefaultWidthFactor,
		},

		CellBlurKernel:     11,
		ThresholdBlockSize: 11,
		ThresholdC:         2,
		CellMinArea:        200,
		CellMaxArea:        25000,
		CellMinInfluence:   0.01,
		CellBorderMargin:   10,
		SquareAspectMin:    0.5,
		SquareAspectMax:    1.5,
		SquareMinAreaRatio: 0.06,
		NarrowAreaRatio:    0.15,
		RelationHigh:       1.2,
		RelationLow:        0.8,
	}
}

// WithDistance returns a copy of params using the given pairing policy.
func (p DetectionParams) WithDistance(policy DistancePolicy) DetectionParams {
	p.Distance = policy
	return p
}

// WithRedRanges returns a copy of params with custom red HSV ranges.
// Useful when the marker has been sampled under different lighting.
func (p DetectionParams) WithRedRanges(ranges ...HSVRange) DetectionParams {
	p.RedRanges = append([]HSVRange(nil), ranges...)
	return p
}

// WithGreenRanges returns a copy of params with custom green HSV ranges.
func (p DetectionParams) WithGreenRanges(ranges ...HSVRange) DetectionParams {
	p.GreenRanges = append([]HSVRange(nil), ranges...)
	return p
}

// Ranges returns the HSV ranges for a marker color.
func (p DetectionParams) Ranges(kind ColorKind) []HSVRange {
	if kind == Red {
		return p.RedRanges
	}
	return p.GreenRanges
}

// Validate reports the first parameter that would make the pipeline misbehave.
func (p DetectionParams) Validate() error {
	kernels := []struct {
		name string
		size int
	}{
		{"mask_blur_kernel", p.MaskBlurKernel},
		{"sobel_kernel", p.SobelKernel},
		{"cell_blur_kernel", p.CellBlurKernel},
		{"threshold_block_size", p.ThresholdBlockSize},
	}
	for _, k := range kernels {
		if k.size <= 0 || k.size%2 == 0 {
			return fmt.Errorf("%s must be a positive odd number, got %d", k.name, k.size)
		}
	}
	if p.ThresholdBlockSize < 3 {
		return fmt.Errorf("threshold_block_size must be at least 3, got %d", p.ThresholdBlockSize)
	}
	if p.SobelKernel > 31 {
		return fmt.Errorf("sobel_kernel must be at most 31, got %d", p.SobelKernel)
	}
	if len(p.RedRanges) == 0 || len(p.GreenRanges) == 0 {
		return fmt.Errorf("both red and green HSV ranges are required")
	}
	if p.MinAreaFraction < 0 || p.MaxAreaFraction <= p.MinAreaFraction {
		return fmt.Errorf("invalid area window: min=%g max=%g", p.MinAreaFraction, p.MaxAreaFraction)
	}
	if p.AspectMin < 0 || p.AspectMax <= p.AspectMin {
		return fmt.Errorf("invalid aspect window: min=%g max=%g", p.AspectMin, p.AspectMax)
	}
	if p.CellMaxArea <= p.CellMinArea {
		return fmt.Errorf("invalid cell area window: min=%g max=%g", p.CellMinArea, p.CellMaxArea)
	}
	if p.RelationLow > p.RelationHigh {
		return fmt.Errorf("relation_low %g exceeds relation_high %g", p.RelationLow, p.RelationHigh)
	}
	return p.Distance.Validate()
}

// oddKernel bumps even kernel sizes to the next odd value; OpenCV rejects even sizes.
func oddKernel(k int) int {
	if k < 1 {
		return 1
	}
	if k%2 == 0 {
		return k + 1
	}
	return k
}
