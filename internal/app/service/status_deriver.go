package service

import (
	"fmt"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
)

// DisplayStatus is what a permit looks like to a reader at a given date. For
// approved permits it is one of the derived values below; for every other
// permit it is the stored status.
type DisplayStatus string

const (
	DisplayActive       DisplayStatus = "active"
	DisplayExpiringSoon DisplayStatus = "expiring_soon"
	DisplayExpired      DisplayStatus = "expired"
)

// ParseDisplayStatus accepts a derived status or any stored status.
func ParseDisplayStatus(s string) (DisplayStatus, error) {
	switch DisplayStatus(s) {
	case DisplayActive, DisplayExpiringSoon, DisplayExpired:
		return DisplayStatus(s), nil
	}
	if model.PermitStatus(s).Valid() {
		return DisplayStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// CalendarDate truncates t to midnight UTC of its own calendar day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysUntil is the whole number of calendar days from now to expiry.
func daysUntil(expiry, now time.Time) int {
	return int(CalendarDate(expiry).Sub(CalendarDate(now)).Hours() / 24)
}

// DeriveDisplayStatus maps a stored status and expiry to a display status.
// An approved permit expiring within horizonDays (today included) is
// expiring_soon; one whose expiry day has passed is expired.
func DeriveDisplayStatus(status model.PermitStatus, expiry *time.Time, now time.Time, horizonDays int) DisplayStatus {
	if status != model.PermitStatusApproved || expiry == nil {
		return DisplayStatus(status)
	}

	days := daysUntil(*expiry, now)
	switch {
	case days < 0:
		return DisplayExpired
	case days <= horizonDays:
		return DisplayExpiringSoon
	default:
		return DisplayActive
	}
}

// DaysRemainingLabel renders the distance to expiry for display.
func DaysRemainingLabel(expiry *time.Time, now time.Time) string {
	if expiry == nil {
		return ""
	}

	days := daysUntil(*expiry, now)
	switch {
	case days == 0:
		return "expires today"
	case days == 1:
		return "1 day remaining"
	case days > 1:
		return fmt.Sprintf("%d days remaining", days)
	case days == -1:
		return "1 day overdue"
	default:
		return fmt.Sprintf("%d days overdue", -days)
	}
}

// DerivedStatusWindow translates a display status filter into the stored
// status and expiry range that DeriveDisplayStatus would map to it, so list
// filters and row labels never disagree.
func DerivedStatusWindow(display DisplayStatus, now time.Time, horizonDays int) ([]model.PermitStatus, repository.DateRange) {
	today := CalendarDate(now)
	horizonEnd := today.AddDate(0, 0, horizonDays+1)
	approved := []model.PermitStatus{model.PermitStatusApproved}

	switch display {
	case DisplayExpired:
		return approved, repository.DateRange{Before: &today}
	case DisplayExpiringSoon:
		return approved, repository.DateRange{From: &today, Before: &horizonEnd}
	case DisplayActive:
		return approved, repository.DateRange{From: &horizonEnd}
	default:
		return []model.PermitStatus{model.PermitStatus(display)}, repository.DateRange{}
	}
}
