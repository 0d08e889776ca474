// README: Wall-clock conversion between user timezones and UTC.
package timeadj

import (
	"fmt"
	"sync"
	"time"
)

// Adjuster converts between a user's local wall-clock time and UTC.
// Loaded locations are cached; zone names are IANA identifiers like
// "Europe/Berlin".
type Adjuster struct {
	mu        sync.Mutex
	locations map[string]*time.Location
}

func New() *Adjuster {
	return &Adjuster{locations: make(map[string]*time.Location)}
}

func (a *Adjuster) location(timezone string) (*time.Location, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if loc, ok := a.locations[timezone]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	a.locations[timezone] = loc
	return loc, nil
}

// ToUTC reinterprets the wall-clock fields of t as local time in the
// given zone and returns the UTC instant. The zero time passes through
// unchanged.
func (a *Adjuster) ToUTC(t time.Time, timezone string) (time.Time, error) {
	if t.IsZero() {
		return t, nil
	}
	loc, err := a.location(timezone)
	if err != nil {
		return time.Time{}, err
	}
	local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	return local.UTC(), nil
}

// ToLocal renders a UTC instant as wall-clock time in the given zone.
func (a *Adjuster) ToLocal(t time.Time, timezone string) (time.Time, error) {
	loc, err := a.location(timezone)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}
