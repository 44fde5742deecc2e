// Package reconcile finds usage events that no service interval explains.
//
// Service intervals assign a vehicle to a time window; usage events record a
// vehicle being used at an instant. A usage event is covered when some interval
// of the same vehicle satisfies start <= timestamp <= end. Everything that is
// not covered is returned, in input order, with its original row intact.
package reconcile

import (
	"time"

	"github.com/saofleet/reconciler/internal/table"
)

// ServiceInterval is one normalized row of the services dataset.
type ServiceInterval struct {
	VehicleID string
	Start     time.Time
	End       time.Time

	// Valid is false when either bound could not be parsed
	Valid bool

	// Row is the zero-based data row in the source table
	Row int
}

// Inverted reports whether the interval ends before it starts.
func (s ServiceInterval) Inverted() bool { return s.End.Before(s.Start) }

// UsageEvent is one normalized row of the usage dataset.
type UsageEvent struct {
	VehicleID string
	Timestamp time.Time

	// Valid is false when the timestamp cell could not be parsed
	Valid bool

	Row int

	// Fields is the original row, written back unchanged to the result
	Fields []string
}

// Columns names the input columns the engine reads.
type Columns struct {
	ServiceVehicle string `yaml:"service_vehicle"`
	ServiceStart   string `yaml:"service_start"`
	ServiceEnd     string `yaml:"service_end"`
	UsageVehicle   string `yaml:"usage_vehicle"`
	UsageTime      string `yaml:"usage_time"`
}

// DefaultColumns matches the headers of the fleet exports.
func DefaultColumns() Columns {
	return Columns{
		ServiceVehicle: "Vehículos",
		ServiceStart:   "Inicio de Servicio",
		ServiceEnd:     "Fin de Servicio",
		UsageVehicle:   "Equipo",
		UsageTime:      "Fecha Uso",
	}
}

// Summary counts what happened during one reconciliation.
type Summary struct {
	Services          int `json:"services"`
	Usages            int `json:"usages"`
	Matched           int `json:"matched"`
	Unmatched         int `json:"unmatched"`
	Vehicles          int `json:"vehicles"`
	InvalidUsageTimes int `json:"invalid_usage_times"`
	InvalidIntervals  int `json:"invalid_intervals"`
	InvertedIntervals int `json:"inverted_intervals"`
}

// Result is the ordered set of uncovered usage events.
type Result struct {
	// Columns is the header of the usage dataset
	Columns []string
	Events  []UsageEvent
	Summary Summary
}

// Table returns the uncovered events as a dataset with the usage columns.
func (r Result) Table() *table.Table {
	t := &table.Table{
		Columns: append([]string(nil), r.Columns...),
		Rows:    make([][]string, 0, len(r.Events)),
	}
	for _, ev := range r.Events {
		t.Rows = append(t.Rows, append([]string(nil), ev.Fields...))
	}
	return t
}
