// Package reminder decides which companies are due an annual return or
// compliance reminder today and hands the notifications to a Notifier.
package reminder

import (
	"fmt"
	"time"

	e "github.com/gartstein/cosec/internal/cosec/errors"
)

// Kind selects a reminder run.
type Kind string

const (
	// KindFirst goes out 30 days before the anniversary.
	KindFirst Kind = "first"
	// KindSecond goes out on the anniversary.
	KindSecond Kind = "second"
	// KindThird goes out 7 days before the annual return is due.
	KindThird Kind = "third"
	// KindCompliance covers the financial statement cycle.
	KindCompliance Kind = "compliance"
	// KindAnniversary is a digest for staff rather than clients.
	KindAnniversary Kind = "anniversary"
)

// AnnualReturnWindow is how long after the anniversary the annual return is due.
const AnnualReturnWindow = 30

// DigestLookahead is how far ahead the staff digest looks.
const DigestLookahead = 7

// offsets are the trigger days relative to the anniversary.
var offsets = map[Kind][]int{
	KindFirst:      {-30},
	KindSecond:     {0},
	KindThird:      {AnnualReturnWindow - 7},
	KindCompliance: {-150, 0, 14},
}

// Kinds lists every kind in run order.
var Kinds = []Kind{KindFirst, KindSecond, KindThird, KindCompliance, KindAnniversary}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown reminder kind %q", e.ErrInvalidInput, s)
}

// Anniversary returns the anniversary of incorporated in year. A 29 February
// incorporation falls on 28 February in common years.
func Anniversary(incorporated time.Time, year int, loc *time.Location) time.Time {
	month, day := incorporated.Month(), incorporated.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// Day truncates t to midnight in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// IsAnniversary reports whether day is an anniversary of incorporated. The
// incorporation day itself is not.
func IsAnniversary(incorporated, day time.Time) bool {
	if day.Year() <= incorporated.Year() {
		return false
	}
	a := Anniversary(incorporated, day.Year(), day.Location())
	return a.Equal(day)
}

// Due reports whether today is a trigger day of kind for a company
// incorporated on incorporated, and returns the anniversary it refers to.
func Due(kind Kind, incorporated, today time.Time) (time.Time, bool) {
	for _, offset := range offsets[kind] {
		candidate := today.AddDate(0, 0, -offset)
		if IsAnniversary(incorporated, candidate) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// NextAnniversary returns the first anniversary on or after today.
func NextAnniversary(incorporated, today time.Time) time.Time {
	year := today.Year()
	if year <= incorporated.Year() {
		year = incorporated.Year() + 1
	}
	a := Anniversary(incorporated, year, today.Location())
	if a.Before(today) {
		a = Anniversary(incorporated, year+1, today.Location())
	}
	return a
}
