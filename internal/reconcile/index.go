package reconcile

import (
	"sort"
	"time"
)

// Index answers containment queries over service intervals.
//
// Intervals are grouped by vehicle and sorted by start. Alongside each sorted
// group the index keeps the running maximum of end, so "does any interval with
// start <= t end at or after t" is one binary search plus one comparison.
type Index struct {
	groups map[string]*group
	size   int
}

type group struct {
	starts []time.Time
	maxEnd []time.Time
}

// NewIndex builds an index. Intervals with an unparseable bound and inverted
// intervals (end before start) can never contain a timestamp and are left out.
func NewIndex(intervals []ServiceInterval) *Index {
	byVehicle := make(map[string][]ServiceInterval)
	for _, iv := range intervals {
		if !iv.Valid || iv.Inverted() {
			continue
		}
		byVehicle[iv.VehicleID] = append(byVehicle[iv.VehicleID], iv)
	}

	idx := &Index{groups: make(map[string]*group, len(byVehicle))}
	for vehicle, ivs := range byVehicle {
		sort.SliceStable(ivs, func(i, j int) bool { return ivs[i].Start.Before(ivs[j].Start) })

		g := &group{
			starts: make([]time.Time, len(ivs)),
			maxEnd: make([]time.Time, len(ivs)),
		}
		for i, iv := range ivs {
			g.starts[i] = iv.Start
			g.maxEnd[i] = iv.End
			if i > 0 && g.maxEnd[i-1].After(iv.End) {
				g.maxEnd[i] = g.maxEnd[i-1]
			}
		}
		idx.groups[vehicle] = g
		idx.size += len(ivs)
	}
	return idx
}

// Covers reports whether some interval of vehicleID satisfies start <= t <= end.
// Unknown vehicles are never covered.
func (idx *Index) Covers(vehicleID string, t time.Time) bool {
	g, ok := idx.groups[vehicleID]
	if !ok {
		return false
	}
	// n = number of intervals with start <= t
	n := sort.Search(len(g.starts), func(i int) bool { return g.starts[i].After(t) })
	if n == 0 {
		return false
	}
	return !g.maxEnd[n-1].Before(t)
}

// Len returns the number of indexed intervals.
func (idx *Index) Len() int { return idx.size }

// Vehicles returns the number of distinct vehicles in the index.
func (idx *Index) Vehicles() int { return len(idx.groups) }
