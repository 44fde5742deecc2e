package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(day, hh, mm int) time.Time {
	return time.Date(2024, time.September, day, hh, mm, 0, 0, time.UTC)
}

func interval(vehicle string, start, end time.Time) ServiceInterval {
	return ServiceInterval{VehicleID: vehicle, Start: start, End: end, Valid: true}
}

func TestIndexCovers(t *testing.T) {
	idx := NewIndex([]ServiceInterval{
		interval("001", at(1, 8, 0), at(1, 18, 0)),
		interval("001", at(2, 8, 0), at(2, 9, 0)),
		interval("002", at(1, 0, 0), at(3, 0, 0)),
	})

	tests := []struct {
		name    string
		vehicle string
		ts      time.Time
		want    bool
	}{
		{"inside", "001", at(1, 10, 0), true},
		{"start bound inclusive", "001", at(1, 8, 0), true},
		{"end bound inclusive", "001", at(1, 18, 0), true},
		{"one minute after end", "001", at(1, 18, 1), false},
		{"one minute before start", "001", at(1, 7, 59), false},
		{"between intervals", "001", at(1, 20, 0), false},
		{"second interval", "001", at(2, 8, 30), true},
		{"before everything", "001", at(1, 0, 0), false},
		{"other vehicle", "002", at(2, 12, 0), true},
		{"unknown vehicle", "003", at(1, 10, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.Covers(tt.vehicle, tt.ts))
		})
	}
}

func TestIndexNestedIntervals(t *testing.T) {
	// a long interval followed by a short one that starts later: the long one
	// still covers times after the short one has ended
	idx := NewIndex([]ServiceInterval{
		interval("001", at(1, 10, 0), at(1, 11, 0)),
		interval("001", at(1, 0, 0), at(1, 23, 0)),
	})
	assert.True(t, idx.Covers("001", at(1, 15, 0)))
	assert.True(t, idx.Covers("001", at(1, 10, 30)))
	assert.False(t, idx.Covers("001", at(1, 23, 1)))
}

func TestIndexSkipsInvertedAndInvalid(t *testing.T) {
	idx := NewIndex([]ServiceInterval{
		interval("001", at(1, 18, 0), at(1, 8, 0)),
		{VehicleID: "002", Start: at(1, 8, 0), End: at(1, 18, 0)},
	})
	assert.False(t, idx.Covers("001", at(1, 12, 0)))
	assert.False(t, idx.Covers("001", at(1, 18, 0)))
	assert.False(t, idx.Covers("002", at(1, 12, 0)))
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 0, idx.Vehicles())
}

func TestIndexZeroLengthInterval(t *testing.T) {
	idx := NewIndex([]ServiceInterval{interval("001", at(1, 8, 0), at(1, 8, 0))})
	assert.True(t, idx.Covers("001", at(1, 8, 0)))
	assert.False(t, idx.Covers("001", at(1, 8, 1)))
}

func TestIndexMatchesLinearScan(t *testing.T) {
	var ivs []ServiceInterval
	for i := 0; i < 40; i++ {
		start := at(1, 0, 0).Add(time.Duration(i*37%600) * time.Minute)
		end := start.Add(time.Duration(i*13%120) * time.Minute)
		ivs = append(ivs, interval("001", start, end))
	}
	idx := NewIndex(ivs)

	for m := 0; m < 24*60; m += 7 {
		ts := at(1, 0, 0).Add(time.Duration(m) * time.Minute)
		want := false
		for _, iv := range ivs {
			if !ts.Before(iv.Start) && !ts.After(iv.End) {
				want = true
				break
			}
		}
		assert.Equal(t, want, idx.Covers("001", ts), "minute %d", m)
	}
}
