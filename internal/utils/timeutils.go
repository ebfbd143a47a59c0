package utils

import "time"

// HoursBetween returns the elapsed hours between two timestamps, swapping the
// arguments when supplied out of order.
func HoursBetween(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Hours()
}

// DaysBetween returns whole elapsed days, never less than one, so rate
// computations have a safe denominator.
func DaysBetween(start, end time.Time) int {
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}
