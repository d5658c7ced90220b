package services

import (
	"fmt"

	"github.com/grantfinder/adverts/internal/models"
)

// Event is an editor action the advert lifecycle reacts to.
type Event string

const (
	EventPublish    Event = "PUBLISH"
	EventSchedule   Event = "SCHEDULE"
	EventUnpublish  Event = "UNPUBLISH"
	EventUnschedule Event = "UNSCHEDULE"
)

// Transition is the pure lifecycle function: it returns the status an advert
// moves to when ev fires in the current status, or a guard violation when the
// event is not legal there. It never mutates anything; committing the move is
// the caller's job.
func Transition(current models.AdvertStatus, ev Event) (models.AdvertStatus, error) {
	switch ev {
	case EventPublish:
		switch current {
		case models.StatusDraft, models.StatusUnpublished, models.StatusUnscheduled:
			return models.StatusPublished, nil
		}
	case EventSchedule:
		switch current {
		case models.StatusDraft, models.StatusUnpublished, models.StatusUnscheduled:
			return models.StatusScheduled, nil
		}
	case EventUnpublish:
		if current == models.StatusPublished {
			return models.StatusUnpublished, nil
		}
	case EventUnschedule:
		if current == models.StatusScheduled {
			return models.StatusUnscheduled, nil
		}
	}
	return current, NewGuardError(fmt.Sprintf("%s is not allowed while the advert is %s", ev, current))
}
