package services

import (
	"testing"

	"github.com/grantfinder/adverts/internal/models"
)

func TestDerivePageStatus(t *testing.T) {
	if got := DerivePageStatus("Yes"); got == nil || *got != models.PageCompleted {
		t.Fatalf("Yes = %v, want COMPLETED", got)
	}
	if got := DerivePageStatus("No"); got == nil || *got != models.PageInProgress {
		t.Fatalf("No = %v, want IN_PROGRESS", got)
	}
	if got := DerivePageStatus(""); got != nil {
		t.Fatalf("absent flag = %v, want nil so the patch omits status", got)
	}
}

func TestDeriveSavedPageStatus(t *testing.T) {
	if got := DeriveSavedPageStatus("Yes", true, models.PageCompleted); got == nil || *got != models.PageCompleted {
		t.Fatalf("explicit flag must win, got %v", got)
	}
	if got := DeriveSavedPageStatus("", true, models.PageCompleted); got == nil || *got != models.PageChanged {
		t.Fatalf("unflagged edit of a completed page after publication = %v, want CHANGED", got)
	}
	if got := DeriveSavedPageStatus("", false, models.PageCompleted); got != nil {
		t.Fatalf("never-published advert must not mark CHANGED, got %v", *got)
	}
	if got := DeriveSavedPageStatus("", true, models.PageInProgress); got != nil {
		t.Fatalf("only completed pages downgrade to CHANGED, got %v", *got)
	}
}

func TestSectionStatusDerivation(t *testing.T) {
	section := &models.Section{Pages: []*models.Page{
		{Status: models.PageNotStarted},
		{Status: models.PageNotStarted},
	}}
	if got := section.Status(); got != models.SectionNotStarted {
		t.Fatalf("all pages untouched = %s, want NOT_STARTED", got)
	}
	section.Pages[0].Status = models.PageCompleted
	if got := section.Status(); got != models.SectionInProgress {
		t.Fatalf("mixed pages = %s, want IN_PROGRESS", got)
	}
	section.Pages[1].Status = models.PageCompleted
	if got := section.Status(); got != models.SectionCompleted {
		t.Fatalf("all pages completed = %s, want COMPLETED", got)
	}
	section.Pages[0].Status = models.PageChanged
	if got := section.Status(); got != models.SectionInProgress {
		t.Fatalf("a changed page = %s, want IN_PROGRESS until reconfirmed", got)
	}
}

func TestPublishDisabled(t *testing.T) {
	a := &models.Advert{Sections: []*models.Section{
		{Pages: []*models.Page{{Status: models.PageCompleted}}},
		{Pages: []*models.Page{{Status: models.PageInProgress}}},
	}}
	if !a.PublishDisabled() {
		t.Fatalf("an incomplete section must disable publishing")
	}
	a.Sections[1].Pages[0].Status = models.PageCompleted
	if a.PublishDisabled() {
		t.Fatalf("fully completed advert must allow publishing")
	}
}
