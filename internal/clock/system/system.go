// Package system supplies the wall clock the pipeline runs on.
package system

import "time"

// Clock satisfies pipeline.Clock with the real wall clock. Run budgets,
// checkpoint timestamps and progress events all read from it in
// production; tests substitute a fake.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC so stored run and target
// timestamps compare cleanly regardless of host timezone.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
