package engine

import (
	"math"
	"time"

	"fleetline/internal/domain"
)

const (
	urgentWindowDays  = 7
	warningWindowDays = 30

	dateLayout = "2006-01-02"
)

// DaysUntil returns the signed number of whole calendar days from now to
// target, rounding partial days up. A negative result means the target has
// already elapsed.
func DaysUntil(target, now time.Time) int {
	return int(math.Ceil(target.Sub(now).Hours() / 24))
}

// ResolveExpiryStatus maps a day count onto one discrete expiry status.
// A nil day count means no date applies. First match wins.
func ResolveExpiryStatus(days *int) domain.ExpiryStatus {
	switch {
	case days == nil:
		return domain.ExpiryInactive
	case *days <= 0:
		return domain.ExpiryExpired
	case *days <= urgentWindowDays:
		return domain.ExpiryUrgent
	case *days <= warningWindowDays:
		return domain.ExpiryWarning
	default:
		return domain.ExpiryValid
	}
}

// ResolveOperationalCategory maps an asset's service state to a display
// category. This axis is independent of expiry and carries no thresholds.
func ResolveOperationalCategory(status domain.OperationalStatus) domain.DisplayCategory {
	switch status {
	case domain.OperationalMaintenance:
		return domain.DisplayOutOfService
	case domain.OperationalDecommissioned:
		return domain.DisplayRetired
	default:
		return domain.DisplayInService
	}
}

// DocumentExpiryStatus derives the expiry severity of a single document at now.
func DocumentExpiryStatus(d domain.Document, now time.Time) domain.ExpiryStatus {
	return statusForDate(d.ExpiryDate, now)
}

// statusForDate resolves an optional date string against now. Absent and
// unparseable dates both map to inactive rather than an error.
func statusForDate(date *string, now time.Time) domain.ExpiryStatus {
	t := parseDate(date)
	if t == nil {
		return domain.ExpiryInactive
	}
	d := DaysUntil(*t, now)
	return ResolveExpiryStatus(&d)
}

// parseDate accepts calendar dates and RFC3339 timestamps; anything else is
// treated as "no date".
func parseDate(date *string) *time.Time {
	if date == nil || *date == "" {
		return nil
	}
	if t, err := time.Parse(dateLayout, *date); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, *date); err == nil {
		return &t
	}
	return nil
}

// expirySeverity ranks statuses worst-first for worst-of aggregation.
func expirySeverity(s domain.ExpiryStatus) int {
	switch s {
	case domain.ExpiryExpired:
		return 4
	case domain.ExpiryUrgent:
		return 3
	case domain.ExpiryWarning:
		return 2
	case domain.ExpiryValid:
		return 1
	default: // inactive: no applicable date, never penalized
		return 0
	}
}

func ensureOperationalTransition(oldStatus, newStatus domain.OperationalStatus) error {
	if oldStatus == newStatus {
		return nil
	}
	switch oldStatus {
	case domain.OperationalActive:
		if newStatus == domain.OperationalMaintenance || newStatus == domain.OperationalDecommissioned {
			return nil
		}
	case domain.OperationalMaintenance:
		if newStatus == domain.OperationalActive || newStatus == domain.OperationalDecommissioned {
			return nil
		}
	}
	return &InvalidTransitionError{From: oldStatus, To: newStatus}
}

// InvalidTransitionError rejects an operational status change the state
// machine does not allow (decommissioned is terminal).
type InvalidTransitionError struct {
	From, To domain.OperationalStatus
}

func (e *InvalidTransitionError) Error() string {
	return "invalid operational status transition " + string(e.From) + " -> " + string(e.To)
}
