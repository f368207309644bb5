package calibration

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// Sampler draws index subsets of a population.
type Sampler interface {
	Sample() []int
}

// RandomCorrespondenceSampler draws distinct random indices from [0, PopulationSize).
// It owns its random source so that a given seed always produces the same sequence of subsets.
type RandomCorrespondenceSampler struct {
	PopulationSize int
	SampleSize     int
	Seed           int64

	rng *rand.Rand
}

// NewRandomCorrespondenceSampler returns a sampler seeded with seed.
func NewRandomCorrespondenceSampler(populationSize, sampleSize int, seed int64) (*RandomCorrespondenceSampler, error) {
	if sampleSize <= 0 || sampleSize > populationSize {
		return nil, errors.Errorf("cannot sample %d of %d correspondences", sampleSize, populationSize)
	}
	return &RandomCorrespondenceSampler{
		PopulationSize: populationSize,
		SampleSize:     sampleSize,
		Seed:           seed,
		//nolint:gosec
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Sample returns SampleSize distinct indices in ascending order.
func (s *RandomCorrespondenceSampler) Sample() []int {
	indices := s.rng.Perm(s.PopulationSize)[:s.SampleSize]
	sort.Ints(indices)
	return indices
}
