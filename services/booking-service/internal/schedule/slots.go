package schedule

import "time"

// Slots returns the bookable slot starts on day's date, stepping from the opening time.
// day's location is used for the wall clock. Slots inside the break are skipped.
func (w Week) Slots(day time.Time, step time.Duration) []time.Time {
	if step < time.Minute {
		return nil
	}
	d := w.Day(day)
	if d == nil {
		return nil
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	stepMin := Clock(step / time.Minute)

	var slots []time.Time
	for c := d.Open.Start; c < d.Open.End; c += stepMin {
		t := time.Date(midnight.Year(), midnight.Month(), midnight.Day(), int(c)/60, int(c)%60, 0, 0, day.Location())
		if w.IsBookable(t) {
			slots = append(slots, t)
		}
	}
	return slots
}
