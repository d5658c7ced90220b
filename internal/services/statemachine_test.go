package services

import (
	"testing"

	"github.com/grantfinder/adverts/internal/models"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from models.AdvertStatus
		ev   Event
		to   models.AdvertStatus
		ok   bool
	}{
		{models.StatusDraft, EventPublish, models.StatusPublished, true},
		{models.StatusDraft, EventSchedule, models.StatusScheduled, true},
		{models.StatusUnpublished, EventPublish, models.StatusPublished, true},
		{models.StatusUnpublished, EventSchedule, models.StatusScheduled, true},
		{models.StatusUnscheduled, EventPublish, models.StatusPublished, true},
		{models.StatusUnscheduled, EventSchedule, models.StatusScheduled, true},
		{models.StatusPublished, EventUnpublish, models.StatusUnpublished, true},
		{models.StatusScheduled, EventUnschedule, models.StatusUnscheduled, true},

		{models.StatusDraft, EventUnpublish, models.StatusDraft, false},
		{models.StatusDraft, EventUnschedule, models.StatusDraft, false},
		{models.StatusPublished, EventPublish, models.StatusPublished, false},
		{models.StatusPublished, EventUnschedule, models.StatusPublished, false},
		{models.StatusScheduled, EventUnpublish, models.StatusScheduled, false},
		{models.StatusScheduled, EventPublish, models.StatusScheduled, false},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.ev)
		if tc.ok {
			if err != nil {
				t.Fatalf("%s + %s: unexpected error %v", tc.from, tc.ev, err)
			}
			if got != tc.to {
				t.Fatalf("%s + %s = %s, want %s", tc.from, tc.ev, got, tc.to)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%s + %s should be rejected", tc.from, tc.ev)
		}
		se, isService := AsServiceError(err)
		if !isService || se.Code != ErrorGuard {
			t.Fatalf("%s + %s should be a guard violation, got %v", tc.from, tc.ev, err)
		}
		if got != tc.from {
			t.Fatalf("rejected transition must not move the status: got %s", got)
		}
	}
}

func TestEveryStateHasAnExit(t *testing.T) {
	events := []Event{EventPublish, EventSchedule, EventUnpublish, EventUnschedule}
	states := []models.AdvertStatus{
		models.StatusDraft, models.StatusUnscheduled, models.StatusScheduled,
		models.StatusPublished, models.StatusUnpublished,
	}
	for _, st := range states {
		exits := 0
		for _, ev := range events {
			if _, err := Transition(st, ev); err == nil {
				exits++
			}
		}
		if exits == 0 {
			t.Fatalf("state %s has no outgoing transition", st)
		}
	}
}
