package reconcile

import (
	"fmt"

	"github.com/saofleet/reconciler/internal/table"
	"github.com/saofleet/reconciler/internal/timeparse"
	"github.com/saofleet/reconciler/internal/vehicleid"
)

// Config selects the input columns and identifier prefixes.
type Config struct {
	Columns    Columns
	ServiceIDs vehicleid.Normalizer
	UsageIDs   vehicleid.Normalizer
}

// DefaultConfig returns the configuration for the standard fleet exports.
func DefaultConfig() Config {
	return Config{
		Columns:    DefaultColumns(),
		ServiceIDs: vehicleid.Services(),
		UsageIDs:   vehicleid.Usages(),
	}
}

// Engine normalizes datasets and reconciles them. It holds no per-run state and
// is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Services normalizes the services dataset. The only error is a missing column;
// unparseable dates produce intervals with Valid == false.
func (e *Engine) Services(t *table.Table) ([]ServiceInterval, error) {
	vehicleCol, err := t.Index(e.cfg.Columns.ServiceVehicle)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}
	startCol, err := t.Index(e.cfg.Columns.ServiceStart)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}
	endCol, err := t.Index(e.cfg.Columns.ServiceEnd)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}

	out := make([]ServiceInterval, 0, t.Len())
	for i := range t.Rows {
		start, okStart := timeparse.Parse(t.Cell(i, startCol))
		end, okEnd := timeparse.Parse(t.Cell(i, endCol))
		out = append(out, ServiceInterval{
			VehicleID: e.cfg.ServiceIDs.Normalize(t.Cell(i, vehicleCol)),
			Start:     start,
			End:       end,
			Valid:     okStart && okEnd,
			Row:       i,
		})
	}
	return out, nil
}

// Usages normalizes the usage dataset, keeping each original row for output.
func (e *Engine) Usages(t *table.Table) ([]UsageEvent, error) {
	vehicleCol, err := t.Index(e.cfg.Columns.UsageVehicle)
	if err != nil {
		return nil, fmt.Errorf("usages: %w", err)
	}
	timeCol, err := t.Index(e.cfg.Columns.UsageTime)
	if err != nil {
		return nil, fmt.Errorf("usages: %w", err)
	}

	out := make([]UsageEvent, 0, t.Len())
	for i, row := range t.Rows {
		ts, ok := timeparse.Parse(t.Cell(i, timeCol))
		out = append(out, UsageEvent{
			VehicleID: e.cfg.UsageIDs.Normalize(t.Cell(i, vehicleCol)),
			Timestamp: ts,
			Valid:     ok,
			Row:       i,
			Fields:    row,
		})
	}
	return out, nil
}

// Reconcile returns the usage events that no service interval covers, in input
// order. Events with an unparseable timestamp are never covered.
func Reconcile(services []ServiceInterval, usages []UsageEvent) Result {
	idx := NewIndex(services)

	res := Result{
		Summary: Summary{
			Services: len(services),
			Usages:   len(usages),
			Vehicles: idx.Vehicles(),
		},
	}
	for _, s := range services {
		switch {
		case !s.Valid:
			res.Summary.InvalidIntervals++
		case s.Inverted():
			res.Summary.InvertedIntervals++
		}
	}

	for _, ev := range usages {
		if !ev.Valid {
			res.Summary.InvalidUsageTimes++
			res.Events = append(res.Events, ev)
			continue
		}
		if idx.Covers(ev.VehicleID, ev.Timestamp) {
			res.Summary.Matched++
			continue
		}
		res.Events = append(res.Events, ev)
	}
	res.Summary.Unmatched = len(res.Events)
	return res
}

// ReconcileTables normalizes both datasets and reconciles them. The result
// carries the usage dataset's columns.
func (e *Engine) ReconcileTables(services, usages *table.Table) (Result, error) {
	svc, err := e.Services(services)
	if err != nil {
		return Result{}, err
	}
	use, err := e.Usages(usages)
	if err != nil {
		return Result{}, err
	}
	res := Reconcile(svc, use)
	res.Columns = usages.Columns
	return res, nil
}
