// Package recommend holds the pure evaluators behind each use case.
//
// Evaluators never perform I/O: callers fetch facts from collaborators and pass
// them in. Results are Decisions (schedule a notification, or do nothing).
package recommend

import (
	"time"

	"gunter/internal/collab"
)

// Use case identifiers, also used as notification data and job names.
const (
	MorningRoutineID  = "morning-routine"
	LunchBreakID      = "lunch-break"
	PersonalTrainerID = "personal-trainer"
	TravelPlanningID  = "travel-planning"
)

const (
	NotificationIcon  = "/favicon.jpg"
	NotificationBadge = "/badge.png"
)

type Kind int

const (
	NoAction Kind = iota
	ScheduleAt
)

func (k Kind) String() string {
	if k == ScheduleAt {
		return "schedule"
	}
	return "no_action"
}

// Reason explains a NoAction outcome. These are normal outcomes, not errors.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNoEvent      Reason = "no_event"
	ReasonNoSlot       Reason = "no_slot"
	ReasonSlotTooShort Reason = "slot_too_short"
	ReasonNoCandidate  Reason = "no_candidate"
	ReasonPastDue      Reason = "past_due"
)

type Decision struct {
	Kind        Kind              `json:"kind"`
	UseCase     string            `json:"usecase"`
	TriggerTime time.Time         `json:"trigger_time,omitempty"`
	Title       string            `json:"title,omitempty"`
	Body        string            `json:"body,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Reason      Reason            `json:"reason,omitempty"`
}

func None(usecase string, reason Reason) Decision {
	return Decision{Kind: NoAction, UseCase: usecase, Reason: reason}
}

func schedule(usecase string, at time.Time, title, body string) Decision {
	return Decision{
		Kind:        ScheduleAt,
		UseCase:     usecase,
		TriggerTime: at,
		Title:       title,
		Body:        body,
		Metadata:    map[string]string{"usecase": usecase},
	}
}

func (d Decision) Scheduled() bool { return d.Kind == ScheduleAt }

// Due turns a decision whose trigger is not strictly after now into NoAction.
func (d Decision) Due(now time.Time) Decision {
	if d.Kind == ScheduleAt && !d.TriggerTime.After(now) {
		out := None(d.UseCase, ReasonPastDue)
		out.TriggerTime = d.TriggerTime
		return out
	}
	return d
}

// Notification renders the push payload for a scheduled decision.
func (d Decision) Notification() collab.Notification {
	data := make(map[string]string, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		data[k] = v
	}
	data["usecase"] = d.UseCase
	return collab.Notification{
		Title: d.Title,
		Body:  d.Body,
		Icon:  NotificationIcon,
		Badge: NotificationBadge,
		Data:  data,
	}
}

// Clock formats t as HH:MM in loc.
func Clock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("15:04")
}
