package order

import "fmt"

const (
	// BasePriority is given to the first initializer of a table built from
	// scratch.
	BasePriority = -10000
	// StepSize separates consecutive initializers of the same assembly.
	StepSize = 10
	// AssemblyStepSize separates consecutive initializers that belong to
	// different assemblies.
	AssemblyStepSize = 100
)

// Spacing configures how new priorities are allocated.
type Spacing struct {
	Base         int
	Step         int
	AssemblyStep int
}

var DefaultSpacing = Spacing{
	Base:         BasePriority,
	Step:         StepSize,
	AssemblyStep: AssemblyStepSize,
}

func (sp Spacing) gap(a, b rank) int {
	if a.assembly == b.assembly {
		return sp.Step
	}
	return sp.AssemblyStep
}

// rank is one position of the linear order handed to renumber.
type rank struct {
	name     string
	assembly string
	value    int
	has      bool // value holds an existing or manual priority
	manual   bool
}

// renumber assigns priorities to ranks, which are already in initialization
// order. The largest set of existing priorities that is increasing along the
// order is kept; everything else is stepped or bisected between the kept
// values. Manual priorities are returned unchanged in every case.
func renumber(ranks []rank, sp Spacing) ([]int, []Notice) {
	anchor := keepConsistent(ranks)

	var notices []Notice
	for i, r := range ranks {
		if r.manual && !anchor[i] {
			notices = append(notices, Notice{
				Code:        NoticeManualPriorityOrdered,
				Initializer: r.name,
				Message:     fmt.Sprintf("manual priority %d conflicts with the dependency order", r.value),
			})
		}
	}

	force := false
	for {
		values, lo, hi, ok := fill(ranks, anchor, sp, force)
		if ok {
			return values, notices
		}

		switch {
		case hi >= 0 && !ranks[hi].manual:
			anchor[hi] = false
		case lo >= 0 && !ranks[lo].manual:
			anchor[lo] = false
		default:
			// two manual priorities without room in between
			force = true
		}
	}
}

// keepConsistent selects a maximum weight strictly increasing subsequence of
// the ranks that carry a value. Manual priorities outweigh any number of
// existing ones.
func keepConsistent(ranks []rank) []bool {
	n := len(ranks)
	best := make([]int, n)
	prev := make([]int, n)
	weight := func(i int) int {
		if ranks[i].manual {
			return n + 1
		}
		return 1
	}

	end := -1
	for i := range ranks {
		prev[i] = -1
		if !ranks[i].has {
			continue
		}

		best[i] = weight(i)
		for j := 0; j < i; j++ {
			if !ranks[j].has || ranks[j].value >= ranks[i].value {
				continue
			}
			if best[j]+weight(i) > best[i] {
				best[i] = best[j] + weight(i)
				prev[i] = j
			}
		}

		if end < 0 || best[i] > best[end] {
			end = i
		}
	}

	keep := make([]bool, n)
	for i := end; i >= 0; i = prev[i] {
		keep[i] = true
	}
	return keep
}

// fill computes values for every rank given the anchors. When a run of
// unanchored ranks has no room between its surrounding anchors, fill reports
// those anchors' indices and ok=false.
func fill(ranks []rank, anchor []bool, sp Spacing, force bool) (values []int, lo, hi int, ok bool) {
	values = make([]int, len(ranks))

	lo = -1
	for i := 0; i < len(ranks); {
		if anchor[i] {
			values[i] = ranks[i].value
			lo = i
			i++
			continue
		}

		end := i
		for end < len(ranks) && !anchor[end] {
			end++
		}
		hi = end
		if hi == len(ranks) {
			hi = -1
		}

		var free []int
		for j := i; j < end; j++ {
			if ranks[j].manual {
				// out of order manual priorities keep their value but are
				// not used as neighbors
				values[j] = ranks[j].value
				continue
			}
			free = append(free, j)
		}

		if !fillRun(values, ranks, free, lo, hi, sp, force) {
			return nil, lo, hi, false
		}
		i = end
	}

	return values, -1, -1, true
}

func fillRun(values []int, ranks []rank, free []int, lo, hi int, sp Spacing, force bool) bool {
	k := len(free)
	if k == 0 {
		return true
	}

	step := func(from int) {
		v := values[from]
		pred := ranks[from]
		for _, j := range free {
			v += sp.gap(pred, ranks[j])
			values[j] = v
			pred = ranks[j]
		}
	}

	switch {
	case lo < 0 && hi < 0:
		v := sp.Base
		values[free[0]] = v
		for n := 1; n < k; n++ {
			v += sp.gap(ranks[free[n-1]], ranks[free[n]])
			values[free[n]] = v
		}
		return true
	case hi < 0:
		step(lo)
		return true
	case lo < 0:
		v := values[hi]
		succ := ranks[hi]
		for n := k - 1; n >= 0; n-- {
			v -= sp.gap(ranks[free[n]], succ)
			values[free[n]] = v
			succ = ranks[free[n]]
		}
		return true
	}

	low, high := values[lo], values[hi]

	last := low
	pred := ranks[lo]
	for _, j := range free {
		last += sp.gap(pred, ranks[j])
		pred = ranks[j]
	}
	if last+sp.gap(pred, ranks[hi]) <= high {
		step(lo)
		return true
	}

	if high-low > k {
		// bisect: spread the run evenly between the anchors
		span := high - low
		for n, j := range free {
			values[j] = low + span*(n+1)/(k+1)
		}
		return true
	}

	if force {
		step(lo)
		return true
	}
	return false
}
