package engine

import "fmt"

// Axis names.
const (
	AxisPlatform     = "platform"
	AxisDevEnv       = "devenv"
	AxisOptimization = "optimization"
)

// Axis is a named, ordered set of discrete values for one matrix dimension.
type Axis struct {
	Name   string
	Values []string
}

// Cartesian returns every combination of the axes' values. Combinations are
// built layer by layer in axis order, so the first axis varies slowest and
// values within an axis keep their declared order. Any empty axis yields no
// combinations.
func Cartesian(axes ...Axis) [][]string {
	if len(axes) == 0 {
		return nil
	}
	for _, a := range axes {
		if len(a.Values) == 0 {
			return nil
		}
	}

	result := make([][]string, len(axes[0].Values))
	for i, v := range axes[0].Values {
		result[i] = []string{v}
	}

	for _, axis := range axes[1:] {
		next := make([][]string, 0, len(result)*len(axis.Values))
		for _, prev := range result {
			for _, v := range axis.Values {
				combo := make([]string, len(prev), len(prev)+1)
				copy(combo, prev)
				next = append(next, append(combo, v))
			}
		}
		result = next
	}
	return result
}

// CombinationCount returns the number of combinations Cartesian would produce.
func CombinationCount(axes ...Axis) int {
	if len(axes) == 0 {
		return 0
	}
	count := 1
	for _, a := range axes {
		count *= len(a.Values)
	}
	return count
}

// ExpandTargets expands target specs into concrete Targets. Specs are
// expanded in order; a Target already produced by an earlier spec is
// dropped so the first occurrence keeps its position.
func ExpandTargets(specs ...TargetSpec) []Target {
	seen := make(map[Target]bool)
	out := make([]Target, 0)

	for _, spec := range specs {
		for _, combo := range Cartesian(spec.Axes()...) {
			opt, err := ParseOptimization(combo[2])
			if err != nil {
				// Axes() only renders known flags.
				panic(fmt.Sprintf("matrix: %v", err))
			}
			t := Target{
				Platform:     Platform(combo[0]),
				DevEnv:       DevEnv(combo[1]),
				Optimization: opt,
			}
			if seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// containsTarget reports whether targets includes t.
func containsTarget(targets []Target, t Target) bool {
	for _, x := range targets {
		if x == t {
			return true
		}
	}
	return false
}
