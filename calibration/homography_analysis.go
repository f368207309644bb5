package calibration

import (
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/handeye/rimage/transform"
)

// MinHomographyCorrespondences is the smallest subset a homography can be fit to.
const MinHomographyCorrespondences = transform.MinHomographyPoints

// HomographyValidationConfig controls the homography consistency check.
type HomographyValidationConfig struct {
	// SampleFraction is the share of the correspondences used to fit each homography.
	SampleFraction float64
	// Trials is the number of random subsets that are fit.
	Trials int
	// Seed seeds the subset sampler.
	Seed int64
}

// DefaultHomographyValidationConfig fits ten homographies to random thirds of the correspondences.
func DefaultHomographyValidationConfig() HomographyValidationConfig {
	return HomographyValidationConfig{
		SampleFraction: 1.0 / 3.0,
		Trials:         10,
		Seed:           1,
	}
}

// CalculateHomographyError fits a homography from the target plane to the image on each sampled
// subset and measures, for every correspondence left out of the subset, the pixel distance between
// its reprojection and its detected location. The errors of all trials are pooled.
// Trials whose subset is degenerate are skipped; if no trial can be fit, ErrDegenerateInput is returned.
func CalculateHomographyError(set CorrespondenceSet, sampler Sampler, trials int) ([]float64, error) {
	if trials <= 0 {
		return nil, errors.Errorf("number of trials must be positive, got %d", trials)
	}
	var errs []float64
	var lastErr error
	for trial := 0; trial < trials; trial++ {
		indices := sampler.Sample()
		subset := set.Subset(indices)
		h, err := transform.EstimateHomography(subset.TargetPlanePoints(), subset.ImagePoints())
		if err != nil {
			lastErr = err
			continue
		}
		for _, c := range set.Complement(indices) {
			projected := h.Apply(c.TargetPlanePoint())
			errs = append(errs, projected.Sub(c.InImage).Norm())
		}
	}
	if len(errs) == 0 {
		return nil, newDegenerateInputError("no sampled subset determined a homography: %v", lastErr)
	}
	return errs, nil
}

// ValidateHomography returns the mean homography reprojection error of the set, in pixels. The
// caller compares it with its threshold. Sets too small to leave correspondences out of a fitted
// subset, and non-planar targets, are rejected with ErrDegenerateInput.
func ValidateHomography(set CorrespondenceSet, cfg HomographyValidationConfig) (float64, error) {
	subsetSize := int(float64(len(set)) * cfg.SampleFraction)
	if subsetSize < 1 {
		subsetSize = 1
	}
	if subsetSize < MinHomographyCorrespondences {
		return 0, newDegenerateInputError(
			"a sample of %d of %d correspondences is smaller than the %d needed to fit a homography",
			subsetSize, len(set), MinHomographyCorrespondences)
	}
	if subsetSize >= len(set) {
		return 0, newDegenerateInputError(
			"a sample of %d of %d correspondences leaves none to check the homography against", subsetSize, len(set))
	}
	if !set.IsPlanar() {
		return 0, newDegenerateInputError("homography validation requires a planar target")
	}

	sampler, err := NewRandomCorrespondenceSampler(len(set), subsetSize, cfg.Seed)
	if err != nil {
		return 0, err
	}
	errs, err := CalculateHomographyError(set, sampler, cfg.Trials)
	if err != nil {
		return 0, err
	}
	return stat.Mean(errs, nil), nil
}

// HomographyErrorSummary describes the distribution of homography reprojection errors.
type HomographyErrorSummary struct {
	Mean   float64
	Median float64
	Max    float64
}

// CalculateHomographyErrorStats computes summary statistics of per-point homography errors.
func CalculateHomographyErrorStats(errs []float64) (HomographyErrorSummary, error) {
	data := stats.Float64Data(errs)
	mean, err := data.Mean()
	if err != nil {
		return HomographyErrorSummary{}, errors.Wrap(err, "mean")
	}
	median, err := data.Median()
	if err != nil {
		return HomographyErrorSummary{}, errors.Wrap(err, "median")
	}
	maximum, err := data.Max()
	if err != nil {
		return HomographyErrorSummary{}, errors.Wrap(err, "max")
	}
	return HomographyErrorSummary{Mean: mean, Median: median, Max: maximum}, nil
}
