package registry

import (
	"fmt"
	"math"

	"github.com/andresmejia3/rollcall/internal/types"
)

// DefaultTolerance is the maximum euclidean distance accepted as the same person.
const DefaultTolerance = 0.6

// TieBreak decides which subject wins when several are within tolerance.
type TieBreak int

const (
	// FirstRegistered picks the earliest registered subject within tolerance,
	// regardless of how close later subjects are.
	FirstRegistered TieBreak = iota
	// Closest picks the subject with the smallest distance within tolerance.
	Closest
)

// ParseTieBreak maps the config names "first" and "closest".
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "first":
		return FirstRegistered, nil
	case "closest":
		return Closest, nil
	}
	return FirstRegistered, fmt.Errorf("unknown tie-break rule %q", s)
}

func (t TieBreak) String() string {
	if t == Closest {
		return "closest"
	}
	return "first"
}

// Match is the outcome of comparing one face against the registry.
type Match struct {
	Subject  string
	Distance float64
	Known    bool
}

// Matcher compares descriptors against the registry.
//
// A subject matches when the euclidean distance between its embedding and the
// descriptor is <= Tolerance. When more than one subject matches, TieBreak
// selects the winner. When none match the result is types.Unknown.
type Matcher struct {
	Registry  *Registry
	Tolerance float64
	TieBreak  TieBreak
}

// NewMatcher returns a matcher; a non-positive tolerance falls back to DefaultTolerance.
func NewMatcher(r *Registry, tolerance float64, tb TieBreak) *Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Matcher{Registry: r, Tolerance: tolerance, TieBreak: tb}
}

// Match finds the subject for descriptor.
func (m *Matcher) Match(descriptor []float64) Match {
	best := Match{Subject: types.Unknown, Distance: math.Inf(1)}
	if m.Registry == nil || len(descriptor) == 0 {
		return best
	}

	for _, s := range m.Registry.subjects {
		d := EuclideanDist(s.Embedding, descriptor)
		if d > m.Tolerance {
			continue
		}
		if m.TieBreak == FirstRegistered {
			return Match{Subject: s.Name, Distance: d, Known: true}
		}
		if d < best.Distance {
			best = Match{Subject: s.Name, Distance: d, Known: true}
		}
	}
	return best
}

// EuclideanDist is the L2 distance used by dlib face descriptors.
// Vectors of different length are never a match.
func EuclideanDist(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
