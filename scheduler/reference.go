package scheduler

import (
	"time"

	"dripmail/models"
)

const (
	// lastSentSkewGuard caps how far in the future a recorded last_sent_at
	// may sit before it is considered clock skew and ignored.
	lastSentSkewGuard = 24 * time.Hour

	// overdueForgiveness is how long past its computed send time a step may
	// be before the anchor is reset to "now". A contact whose sequence
	// stalled (scheduler downtime, long pause) gets its remaining steps
	// re-spaced instead of fired back to back.
	overdueForgiveness = time.Hour
)

// ReferenceTime returns the anchor the next step's delay is measured from.
//
// A contact that has never been sent anything is anchored to the current
// evaluation time, not the campaign start date: anchoring dormant contacts
// to a historical date would mark them overdue the instant a campaign is
// activated. Contacts mid-sequence anchor to last_sent_at, unless that
// value is missing or skewed into the future, in which case "now" is the
// only trustworthy anchor left.
func ReferenceTime(contact *models.CampaignContact, now time.Time) time.Time {
	if contact.CurrentStep == 0 {
		return now
	}
	if contact.LastSentAt == nil {
		// current_step > 0 without a send timestamp is a data
		// inconsistency; self-heal by re-anchoring.
		return now
	}
	if contact.LastSentAt.After(now.Add(lastSentSkewGuard)) {
		return now
	}
	return *contact.LastSentAt
}

// NextSendTime computes when the given step becomes due for the contact.
// If the literal arithmetic lands more than overdueForgiveness in the
// past, the delay is recomputed from now: missed windows are forgiven,
// never burst.
func NextSendTime(contact *models.CampaignContact, step *models.SequenceStep, now time.Time) time.Time {
	ref := ReferenceTime(contact, now)
	next := ref.Add(step.Delay())
	if now.Sub(next) > overdueForgiveness {
		next = now.Add(step.Delay())
	}
	return next
}
