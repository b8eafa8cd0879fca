package usecase

import (
	"errors"

	"gunter/internal/collab"
	"gunter/internal/recommend"
)

var sourceNouns = map[string]string{
	"preferences": "your preferences",
	"calendar":    "your calendar events",
	"weather":     "a weather forecast",
	"transit":     "a connection",
	"places":      "a place nearby",
	"stations":    "any destinations",
}

// failureMessage renders a collaborator or preference failure for display.
func failureMessage(err error) string {
	var ce *collab.ConfigurationError
	if errors.As(err, &ce) {
		return "Could not find your preferences: " + ce.Field + " is not set up."
	}
	var fe *collab.FetchError
	if errors.As(err, &fe) {
		noun, ok := sourceNouns[fe.Source]
		if !ok {
			noun = fe.Source
		}
		if fe.Timeout() {
			return "Could not find " + noun + " in time."
		}
		return "Could not find " + noun + "."
	}
	return "Could not find a recommendation."
}

func reasonMessage(usecase string, r recommend.Reason) string {
	switch r {
	case recommend.ReasonNoEvent:
		return "Could not find an upcoming event."
	case recommend.ReasonNoSlot:
		return "Could not find a free slot today."
	case recommend.ReasonSlotTooShort:
		return "Could not find a free slot long enough today."
	case recommend.ReasonNoCandidate:
		if usecase == recommend.LunchBreakID {
			return "Could not find a restaurant nearby."
		}
		return "Could not find a place for sports nearby."
	case recommend.ReasonPastDue:
		return "The recommended time has already passed."
	}
	return "Nothing to recommend right now."
}
