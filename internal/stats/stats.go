// ABOUTME: Pure training math: Epley e1RM, volume, drop-set weights, set expansion.
// ABOUTME: No storage access; used by the logging transaction and PR evaluation.
package stats

import (
	"fmt"
	"math"
)

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// EstimateE1RM estimates a one-rep max with the Epley formula.
// ok is false when weight or reps is not positive.
func EstimateE1RM(weight float64, reps int) (e1rm float64, ok bool) {
	if weight <= 0 || reps <= 0 {
		return 0, false
	}
	if reps == 1 {
		return weight, true
	}
	return Round1(weight * (1 + float64(reps)/30)), true
}

// VolumeSet is the minimum a set needs to contribute to volume.
type VolumeSet struct {
	Reps   int
	Weight *float64
	Warmup bool
}

// CalculateVolume sums weight×reps over non-warmup sets. A missing weight
// contributes zero.
func CalculateVolume(sets []VolumeSet) float64 {
	var total float64
	for _, s := range sets {
		if s.Warmup || s.Weight == nil {
			continue
		}
		total += *s.Weight * float64(s.Reps)
	}
	return total
}

// DropSetWeights returns the weight of each set in a drop scheme: set i
// (0-based) is weight×(1−i×dropPercent/100), rounded to one decimal and
// floored at zero.
func DropSetWeights(weight, dropPercent float64, sets int) []float64 {
	out := make([]float64, sets)
	for i := 0; i < sets; i++ {
		w := Round1(weight * (1 - float64(i)*dropPercent/100))
		out[i] = math.Max(0, w)
	}
	return out
}

// ExpandReps turns a scalar or per-set reps value into one entry per set.
// sets is the requested count (0 = unspecified). The returned count is the
// effective number of sets.
func ExpandReps(reps any, sets int) ([]int, error) {
	switch v := reps.(type) {
	case nil:
		return nil, fmt.Errorf("reps is required")
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("reps array must not be empty")
		}
		if sets > 0 && sets != len(v) {
			return nil, fmt.Errorf("reps array has %d entries but sets is %d", len(v), sets)
		}
		out := make([]int, len(v))
		for i, item := range v {
			n, err := toInt(item)
			if err != nil {
				return nil, fmt.Errorf("reps[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case []int:
		return ExpandReps(intsToAny(v), sets)
	default:
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("reps: %w", err)
		}
		if sets <= 0 {
			sets = 1
		}
		out := make([]int, sets)
		for i := range out {
			out[i] = n
		}
		return out, nil
	}
}

// ExpandNotes broadcasts a scalar note or spreads a per-set array over n
// sets. Missing entries are nil.
func ExpandNotes(notes any, n int) ([]*string, error) {
	out := make([]*string, n)
	switch v := notes.(type) {
	case nil:
		return out, nil
	case string:
		if v == "" {
			return out, nil
		}
		for i := range out {
			s := v
			out[i] = &s
		}
		return out, nil
	case []any:
		if len(v) > n {
			return nil, fmt.Errorf("set_notes has %d entries for %d sets", len(v), n)
		}
		for i, item := range v {
			if item == nil {
				continue
			}
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("set_notes[%d] must be a string", i)
			}
			if s != "" {
				out[i] = &s
			}
		}
		return out, nil
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return ExpandNotes(items, n)
	default:
		return nil, fmt.Errorf("set_notes must be a string or an array of strings")
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return checkReps(n)
	case int64:
		return checkReps(int(n))
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("must be a whole number, got %v", n)
		}
		return checkReps(int(n))
	default:
		return 0, fmt.Errorf("must be a number, got %T", v)
	}
}

func checkReps(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("must not be negative, got %d", n)
	}
	return n, nil
}

func intsToAny(v []int) []any {
	out := make([]any, len(v))
	for i, n := range v {
		out[i] = n
	}
	return out
}
