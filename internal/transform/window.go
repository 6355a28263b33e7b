package transform

import "time"

// day truncates a timestamp to day granularity in its own location.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Window is the inclusive first-week interval [Signup, Signup+Days] at day
// granularity. Signup must already be day-truncated (the normalizer
// guarantees this for spine rows).
type Window struct {
	Signup time.Time
	Days   int
}

// Contains reports whether the timestamp's calendar day falls inside the
// window. Both endpoints are included: an event dated exactly Signup+Days is
// in, one dated Signup+Days+1 is out.
func (w Window) Contains(t time.Time) bool {
	d := day(t)
	return !d.Before(w.Signup) && !d.After(w.Signup.AddDate(0, 0, w.Days))
}
