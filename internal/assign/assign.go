// Package assign deterministically maps session keys to experiment variants.
//
// Assignment holds no state: the same key and the same ordered variant list
// always yield the same variant, across processes and service instances. The
// hash is the service's canonical one (polynomial rolling hash wrapped to the
// 32-bit signed range), so assignments agree with every other SDK talking to
// the same experiment.
package assign

import (
	"fmt"
	"math"

	"github.com/haasonsaas/promptwire/pkg/models"
)

// trafficTolerance is the allowed deviation of a variant list's traffic sum
// from 1.0, matching the service's creation-time validation.
const trafficTolerance = 0.001

// Select returns the variant assigned to key.
//
// The key hashes to a fixed-precision fraction in [0,1); the variants are
// walked in stored order accumulating traffic, and the first variant whose
// cumulative share reaches the fraction wins. If rounding leaves the
// cumulative sum short of the fraction, the last variant is returned, so the
// function is total for any non-empty list. Callers must check experiment
// status and variant presence first; an empty list is a caller error.
func Select(key string, variants []models.Variant) models.Variant {
	fraction := Fraction(key)

	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.Traffic
		if fraction <= cumulative {
			return v
		}
	}
	return variants[len(variants)-1]
}

// Fraction reduces key to the assignment fraction in [0,1) with three decimal
// digits of precision.
func Fraction(key string) float64 {
	h := int64(hash32(key))
	if h < 0 {
		h = -h
	}
	return float64(h%1000) / 1000
}

// hash32 is the canonical rolling hash: h = h*31 + codepoint, wrapped to the
// 32-bit signed range at every step.
func hash32(s string) int32 {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return h
}

// ValidateTraffic rejects variant lists whose traffic shares do not partition
// the unit interval. The permissive Select path tolerates malformed lists by
// falling back to the last variant; callers wanting strict behavior run this
// check when an experiment is loaded.
func ValidateTraffic(variants []models.Variant) error {
	if len(variants) == 0 {
		return fmt.Errorf("experiment has no variants")
	}
	sum := 0.0
	for _, v := range variants {
		if v.Traffic < 0 || v.Traffic > 1 {
			return fmt.Errorf("variant %q traffic %v outside [0,1]", v.Name, v.Traffic)
		}
		sum += v.Traffic
	}
	if math.Abs(sum-1.0) > trafficTolerance {
		return fmt.Errorf("variant traffic sums to %v, want 1.0 (±%v)", sum, trafficTolerance)
	}
	return nil
}
