package domain

import (
	"fmt"
	"math"
	"time"
)

// CycleInterval is the spacing of model runs.
const CycleInterval = 3 * time.Hour

// ValidationMaxLeadHours caps the forecast horizon in validation mode.
const ValidationMaxLeadHours = 24

// ModelRun identifies the run and forecast hour that supply one valid time.
type ModelRun struct {
	Family ModelFamily
	Cycle  time.Time // Initialization time, UTC.
	Offset int       // Forecast-hour offset from Cycle.
	Older  bool      // Run was stepped back one cycle.
}

// Date returns the cycle date as yyyymmdd.
func (r ModelRun) Date() string {
	return r.Cycle.Format("20060102")
}

// Hour returns the zero-padded cycle hour.
func (r ModelRun) Hour() string {
	return r.Cycle.Format("15")
}

// ValidTime returns the time the run's forecast hour is valid for.
func (r ModelRun) ValidTime() time.Time {
	return r.Cycle.Add(time.Duration(r.Offset) * time.Hour)
}

// File returns the identity of the model-level file for level and variable.
func (r ModelRun) File(level int, variable string) FileIdentity {
	return FileIdentity{
		Family:   r.Family,
		Date:     r.Date(),
		Hour:     r.Hour(),
		Offset:   r.Offset,
		Level:    level,
		Variable: variable,
	}
}

// HHLFile returns the identity of the time-invariant half-level height file
// for half level i (1-based) of this run's cycle.
func (r ModelRun) HHLFile(i int) FileIdentity {
	return FileIdentity{
		Family:   r.Family,
		Date:     r.Date(),
		Hour:     r.Hour(),
		Level:    i,
		Variable: "hhl",
	}
}

func (r ModelRun) String() string {
	return fmt.Sprintf("%s %s%s+%03d", r.Family.Name, r.Date(), r.Hour(), r.Offset)
}

// CycleResolver maps a valid time onto a model run.
type CycleResolver struct {
	// Validation treats the target as a past observation: the reference
	// "now" becomes one hour before the target and the horizon is capped at
	// ValidationMaxLeadHours.
	Validation bool

	// MaxLeadHours overrides the validation horizon when positive.
	MaxLeadHours int
}

// Resolve returns the run of family that covers target, as seen at now.
// A nil target means now. With older set the cycle is stepped back by one
// additional CycleInterval.
func (c CycleResolver) Resolve(family ModelFamily, now time.Time, target *time.Time, older bool) (ModelRun, error) {
	ref := now.UTC()
	maxLead := family.MaxLeadHours
	if c.Validation {
		if target == nil {
			return ModelRun{}, fmt.Errorf("validation mode requires a target time")
		}
		ref = target.UTC().Add(-time.Hour)
		limit := ValidationMaxLeadHours
		if c.MaxLeadHours > 0 {
			limit = c.MaxLeadHours
		}
		maxLead = min(maxLead, limit)
	}

	// Round down to the 3-hour grid.
	hour := ref.Truncate(time.Hour)
	back := hour.Hour() % int(CycleInterval/time.Hour)
	if older {
		back += int(CycleInterval / time.Hour)
	}
	cycle := hour.Add(-time.Duration(back) * time.Hour)

	var offset int
	if target != nil {
		lead := target.UTC().Sub(cycle).Truncate(time.Minute)
		offset = int(math.Round(lead.Minutes() / 60))
	} else {
		offset = back
		if ref.Minute() > 30 {
			offset++
		}
	}

	if offset < 0 || offset > maxLead {
		return ModelRun{}, fmt.Errorf("%w: lead %dh from cycle %s is outside 0..%dh",
			ErrOutOfForecastWindow, offset, cycle.Format("2006010215"), maxLead)
	}

	return ModelRun{
		Family: family,
		Cycle:  cycle,
		Offset: offset,
		Older:  older,
	}, nil
}
