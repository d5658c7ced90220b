package services

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/grantfinder/adverts/internal/models"
	"github.com/grantfinder/adverts/internal/schema"
)

type casCall struct {
	expected models.AdvertStatus
	next     models.AdvertStatus
	stamp    TransitionStamp
}

type stubAdvertStore struct {
	advert    *models.Advert
	read      *AdvertStatusRead
	casOK     bool
	casCalls  []casCall
	patches   []PagePatch
	inserted  *models.Advert
	audit     []AuditEntry
	due       []string
	nameTaken bool
}

func (s *stubAdvertStore) InsertAdvert(a *models.Advert) error {
	s.inserted = a
	return nil
}

func (s *stubAdvertStore) NameTaken(schemeID, name string) (bool, error) {
	return s.nameTaken, nil
}

func (s *stubAdvertStore) GetAdvert(id string) (*models.Advert, error) {
	if s.advert != nil && s.advert.ID == id {
		return s.advert, nil
	}
	return nil, nil
}

func (s *stubAdvertStore) GetAdvertStatus(id string) (*AdvertStatusRead, error) {
	return s.read, nil
}

func (s *stubAdvertStore) PatchSectionPage(advertID, sectionID, pageID string, patch PagePatch) error {
	s.patches = append(s.patches, patch)
	return nil
}

func (s *stubAdvertStore) CompareAndSwapStatus(advertID string, expected, next models.AdvertStatus, stamp TransitionStamp) (bool, error) {
	s.casCalls = append(s.casCalls, casCall{expected: expected, next: next, stamp: stamp})
	return s.casOK, nil
}

func (s *stubAdvertStore) ListDueScheduled(now time.Time) ([]string, error) {
	return s.due, nil
}

func (s *stubAdvertStore) AddAudit(entry AuditEntry) {
	s.audit = append(s.audit, entry)
}

type stubCipher struct{}

func (stubCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return "enc:" + plaintext, nil
}

func (stubCipher) DecryptOrPlaceholder(ciphertext string) string {
	if strings.HasPrefix(ciphertext, "enc:") {
		return strings.TrimPrefix(ciphertext, "enc:")
	}
	return "Deleted user"
}

type stubListing struct {
	indexed []string
	removed []string
}

func (l *stubListing) Index(_ context.Context, a *models.Advert) error {
	l.indexed = append(l.indexed, a.ID)
	return nil
}

func (l *stubListing) Remove(_ context.Context, advertID string) error {
	l.removed = append(l.removed, advertID)
	return nil
}

func testTemplate() *schema.Template {
	return &schema.Template{Sections: []schema.SectionDef{
		{ID: "grantDetails", Title: "Grant details", Pages: []schema.PageDef{
			{ID: "funderPage", Title: "Funding organisation", Questions: []schema.QuestionDef{
				{ID: "grantFunder", ResponseType: models.ResponseShortText},
			}},
		}},
		{ID: "applicationDates", Title: "Application dates", Pages: []schema.PageDef{
			{ID: "openDatePage", Title: "Opening date", Questions: []schema.QuestionDef{
				{ID: models.OpeningDateQuestionID, ResponseType: models.ResponseDate},
			}},
		}},
	}}
}

func newTestService(store *stubAdvertStore, listing *stubListing) *AdvertService {
	svc := NewAdvertService(store, NewCodec(staticTransform), stubCipher{}, listing, testTemplate())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	svc.idGenerator = func() string { return "ADV1" }
	return svc
}

func completeAdvert(status models.AdvertStatus, openingDate []string) *models.Advert {
	return &models.Advert{
		ID:     "ADV1",
		Name:   "Chargepoint Grant",
		Status: status,
		Sections: []*models.Section{
			{ID: "grantDetails", Pages: []*models.Page{
				{ID: "funderPage", Status: models.PageCompleted, Questions: []*models.Question{
					{ID: "grantFunder", ResponseType: models.ResponseShortText, Response: "OZEV"},
				}},
			}},
			{ID: "applicationDates", Pages: []*models.Page{
				{ID: "openDatePage", Status: models.PageCompleted, Questions: []*models.Question{
					{ID: models.OpeningDateQuestionID, ResponseType: models.ResponseDate, MultiResponse: openingDate},
				}},
			}},
		},
	}
}

func TestCreateAdvert(t *testing.T) {
	store := &stubAdvertStore{}
	svc := newTestService(store, nil)

	a, err := svc.CreateAdvert("SCHEME1", "Chargepoint Grant", "admin@cabinetoffice.gov.uk")
	if err != nil {
		t.Fatalf("create advert: %v", err)
	}
	if a.Status != models.StatusDraft {
		t.Fatalf("new advert status = %s, want DRAFT", a.Status)
	}
	if len(a.Sections) != 2 || a.Sections[0].Pages[0].Status != models.PageNotStarted {
		t.Fatalf("advert not built from template: %+v", a.Sections)
	}
	if store.inserted == nil {
		t.Fatalf("advert was not persisted")
	}
	if a.LastUpdatedByEmail != "enc:admin@cabinetoffice.gov.uk" {
		t.Fatalf("editor email must be stored encrypted, got %q", a.LastUpdatedByEmail)
	}

	if _, err := svc.CreateAdvert("SCHEME1", "  ", "admin@cabinetoffice.gov.uk"); err == nil {
		t.Fatalf("blank name should be rejected")
	}
}

func TestCreateAdvertRejectsDuplicateName(t *testing.T) {
	store := &stubAdvertStore{nameTaken: true}
	svc := newTestService(store, nil)

	_, err := svc.CreateAdvert("SCHEME1", "Chargepoint Grant", "admin@cabinetoffice.gov.uk")
	se, ok := AsServiceError(err)
	if !ok || se.Field != "name" {
		t.Fatalf("duplicate name in the same scheme should be a field-level validation error, got %v", err)
	}
	if store.inserted != nil {
		t.Fatalf("rejected advert must not be persisted")
	}
}

func TestSavePageDerivesStatus(t *testing.T) {
	store := &stubAdvertStore{advert: completeAdvert(models.StatusDraft, nil)}
	svc := newTestService(store, nil)

	form := url.Values{"grantFunder": {"OZEV"}, "completed": {"Yes"}}
	if err := svc.SavePage("ADV1", "grantDetails", "funderPage", form, true, "a@example.com"); err != nil {
		t.Fatalf("save page: %v", err)
	}
	patch := store.patches[0]
	if patch.Status == nil || *patch.Status != models.PageCompleted {
		t.Fatalf("completed=Yes must patch status COMPLETED, got %v", patch.Status)
	}
	if len(patch.Questions) != 1 || patch.Questions[0].Response != "OZEV" || !patch.Questions[0].Seen {
		t.Fatalf("question patch wrong: %+v", patch.Questions)
	}
}

func TestSavePageOmitsStatusWhenFlagAbsent(t *testing.T) {
	store := &stubAdvertStore{advert: completeAdvert(models.StatusDraft, nil)}
	svc := newTestService(store, nil)

	form := url.Values{"grantFunder": {"OZEV"}}
	if err := svc.SavePage("ADV1", "grantDetails", "funderPage", form, true, "a@example.com"); err != nil {
		t.Fatalf("save page: %v", err)
	}
	if store.patches[0].Status != nil {
		t.Fatalf("absent completion flag must not send a status, got %v", *store.patches[0].Status)
	}
}

func TestSavePageMarksChangedAfterPublication(t *testing.T) {
	published := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	a := completeAdvert(models.StatusPublished, nil)
	a.FirstPublishedDate = &published
	store := &stubAdvertStore{advert: a}
	svc := newTestService(store, nil)

	// Editing a completed page without reconfirming it, after the advert has
	// been published, must downgrade the page to CHANGED.
	form := url.Values{"grantFunder": {"DfT"}}
	if err := svc.SavePage("ADV1", "grantDetails", "funderPage", form, true, "a@example.com"); err != nil {
		t.Fatalf("save page: %v", err)
	}
	patch := store.patches[0]
	if patch.Status == nil || *patch.Status != models.PageChanged {
		t.Fatalf("edited completed page = %v, want CHANGED", patch.Status)
	}
}

func TestSubmitPublishGuardViolation(t *testing.T) {
	a := completeAdvert(models.StatusDraft, nil)
	a.Sections[0].Pages[0].Status = models.PageInProgress
	store := &stubAdvertStore{
		advert: a,
		read:   &AdvertStatusRead{Status: models.StatusDraft},
	}
	svc := newTestService(store, nil)

	_, err := svc.SubmitPublish(context.Background(), "ADV1", models.StatusDraft, "a@example.com")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorGuard {
		t.Fatalf("incomplete advert should fail the publish guard, got %v", err)
	}
	if len(store.casCalls) != 0 {
		t.Fatalf("guard violation must not attempt a status write")
	}
}

func TestSubmitPublishImmediate(t *testing.T) {
	listing := &stubListing{}
	store := &stubAdvertStore{
		advert: completeAdvert(models.StatusDraft, nil),
		read:   &AdvertStatusRead{Status: models.StatusDraft},
		casOK:  true,
	}
	svc := newTestService(store, listing)

	outcome, err := svc.SubmitPublish(context.Background(), "ADV1", models.StatusDraft, "a@example.com")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if outcome.Status != models.StatusPublished || outcome.Scheduled {
		t.Fatalf("outcome = %+v, want immediate publish", outcome)
	}
	call := store.casCalls[0]
	if call.expected != models.StatusDraft || call.next != models.StatusPublished {
		t.Fatalf("cas = %s -> %s, want DRAFT -> PUBLISHED", call.expected, call.next)
	}
	if call.stamp.ContentfulSlug != "chargepoint-grant" {
		t.Fatalf("first publish must assign the slug, got %q", call.stamp.ContentfulSlug)
	}
	if len(listing.indexed) != 1 {
		t.Fatalf("published advert must be mirrored into the listing")
	}
}

func TestSubmitPublishFutureOpeningDateSchedules(t *testing.T) {
	listing := &stubListing{}
	store := &stubAdvertStore{
		advert: completeAdvert(models.StatusDraft, []string{"24", "12", "2030", "10:30"}),
		read:   &AdvertStatusRead{Status: models.StatusDraft},
		casOK:  true,
	}
	svc := newTestService(store, listing)

	outcome, err := svc.SubmitPublish(context.Background(), "ADV1", models.StatusDraft, "a@example.com")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if outcome.Status != models.StatusScheduled || !outcome.Scheduled {
		t.Fatalf("outcome = %+v, want SCHEDULED", outcome)
	}
	call := store.casCalls[0]
	if call.next != models.StatusScheduled {
		t.Fatalf("cas next = %s, want SCHEDULED", call.next)
	}
	if call.stamp.OpeningTime == nil {
		t.Fatalf("complete opening date must collapse into an instant on the stamp")
	}
	if len(listing.indexed) != 0 {
		t.Fatalf("scheduled adverts are not yet live and must not be indexed")
	}
}

func TestSubmitPublishStaleSessionConflicts(t *testing.T) {
	store := &stubAdvertStore{
		advert: completeAdvert(models.StatusPublished, nil),
		read: &AdvertStatusRead{
			Status:             models.StatusPublished,
			LastUpdated:        time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC),
			LastUpdatedByEmail: "enc:rival@cabinetoffice.gov.uk",
		},
	}
	svc := newTestService(store, nil)

	_, err := svc.SubmitPublish(context.Background(), "ADV1", models.StatusDraft, "a@example.com")
	ce, ok := AsConflictError(err)
	if !ok {
		t.Fatalf("stale expected status should conflict, got %v", err)
	}
	if ce.LastUpdatedBy != "rival@cabinetoffice.gov.uk" {
		t.Fatalf("conflict must name the other editor, got %q", ce.LastUpdatedBy)
	}
	if ce.CurrentStatus != models.StatusPublished {
		t.Fatalf("conflict must carry the current status, got %s", ce.CurrentStatus)
	}
	if len(store.casCalls) != 0 {
		t.Fatalf("conflict must not attempt a write")
	}
}

func TestSubmitPublishLostRaceConflicts(t *testing.T) {
	store := &stubAdvertStore{
		advert: completeAdvert(models.StatusDraft, nil),
		read:   &AdvertStatusRead{Status: models.StatusDraft, LastUpdatedByEmail: "enc:rival@cabinetoffice.gov.uk"},
		casOK:  false,
	}
	svc := newTestService(store, nil)

	_, err := svc.SubmitPublish(context.Background(), "ADV1", models.StatusDraft, "a@example.com")
	if _, ok := AsConflictError(err); !ok {
		t.Fatalf("lost compare-and-swap should conflict, got %v", err)
	}
}

func TestSubmitUnpublishMalformedConfirmation(t *testing.T) {
	store := &stubAdvertStore{read: &AdvertStatusRead{Status: models.StatusPublished}}
	svc := newTestService(store, nil)

	_, err := svc.SubmitUnpublish(context.Background(), "ADV1", models.StatusPublished, "", "a@example.com")
	se, ok := AsServiceError(err)
	if !ok || se.Field != "confirmation" {
		t.Fatalf("missing confirmation should be a field-level validation error, got %v", err)
	}
	if len(store.casCalls) != 0 {
		t.Fatalf("malformed submission must not attempt a write")
	}
}

func TestSubmitUnpublishDeclined(t *testing.T) {
	store := &stubAdvertStore{read: &AdvertStatusRead{Status: models.StatusPublished}}
	svc := newTestService(store, nil)

	outcome, err := svc.SubmitUnpublish(context.Background(), "ADV1", models.StatusPublished, "false", "a@example.com")
	if err != nil {
		t.Fatalf("declining must not error: %v", err)
	}
	if outcome.Confirmed || outcome.Status != models.StatusPublished {
		t.Fatalf("declined unpublish must be a no-op, got %+v", outcome)
	}
	if len(store.casCalls) != 0 {
		t.Fatalf("declined confirmation must not write")
	}
}

func TestSubmitUnpublishAgainstMovedAdvertConflicts(t *testing.T) {
	// Session loaded the advert as DRAFT; a second editor published it before
	// this submission. Even though PUBLISHED would itself allow an unpublish,
	// acting on the moved advert must surface a conflict.
	store := &stubAdvertStore{
		read: &AdvertStatusRead{
			Status:             models.StatusPublished,
			LastUpdatedByEmail: "enc:rival@cabinetoffice.gov.uk",
		},
	}
	svc := newTestService(store, nil)

	_, err := svc.SubmitUnpublish(context.Background(), "ADV1", models.StatusDraft, "true", "a@example.com")
	ce, ok := AsConflictError(err)
	if !ok {
		t.Fatalf("want conflict, got %v", err)
	}
	if ce.LastUpdatedBy != "rival@cabinetoffice.gov.uk" || ce.CurrentStatus != models.StatusPublished {
		t.Fatalf("conflict details wrong: %+v", ce)
	}
	if len(store.casCalls) != 0 {
		t.Fatalf("conflicted submission must not write")
	}
}

func TestSubmitUnpublishConfirmed(t *testing.T) {
	listing := &stubListing{}
	store := &stubAdvertStore{
		read:  &AdvertStatusRead{Status: models.StatusPublished},
		casOK: true,
	}
	svc := newTestService(store, listing)

	outcome, err := svc.SubmitUnpublish(context.Background(), "ADV1", models.StatusPublished, "true", "a@example.com")
	if err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	if !outcome.Confirmed || outcome.Status != models.StatusUnpublished {
		t.Fatalf("outcome = %+v, want confirmed UNPUBLISHED", outcome)
	}
	call := store.casCalls[0]
	if call.expected != models.StatusPublished || call.next != models.StatusUnpublished {
		t.Fatalf("cas = %s -> %s, want PUBLISHED -> UNPUBLISHED", call.expected, call.next)
	}
	if len(listing.removed) != 1 {
		t.Fatalf("unpublished advert must be removed from the listing")
	}
}

func TestSubmitUnscheduleConfirmed(t *testing.T) {
	store := &stubAdvertStore{
		read:  &AdvertStatusRead{Status: models.StatusScheduled},
		casOK: true,
	}
	svc := newTestService(store, nil)

	outcome, err := svc.SubmitUnschedule(context.Background(), "ADV1", models.StatusScheduled, "true", "a@example.com")
	if err != nil {
		t.Fatalf("unschedule: %v", err)
	}
	if !outcome.Confirmed || outcome.Status != models.StatusUnscheduled {
		t.Fatalf("outcome = %+v, want confirmed UNSCHEDULED", outcome)
	}
}

func TestActivateDueAdverts(t *testing.T) {
	listing := &stubListing{}
	store := &stubAdvertStore{
		advert: completeAdvert(models.StatusScheduled, nil),
		due:    []string{"ADV1"},
		casOK:  true,
	}
	svc := newTestService(store, listing)

	n, err := svc.ActivateDueAdverts(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if n != 1 {
		t.Fatalf("activated = %d, want 1", n)
	}
	call := store.casCalls[0]
	if call.expected != models.StatusScheduled || call.next != models.StatusPublished {
		t.Fatalf("cas = %s -> %s, want SCHEDULED -> PUBLISHED", call.expected, call.next)
	}
	if len(listing.indexed) != 1 {
		t.Fatalf("activated advert must be mirrored into the listing")
	}
}

func TestActivateSkipsLostRace(t *testing.T) {
	store := &stubAdvertStore{due: []string{"ADV1"}, casOK: false}
	svc := newTestService(store, nil)

	n, err := svc.ActivateDueAdverts(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if n != 0 {
		t.Fatalf("an advert unscheduled mid-sweep must be skipped, activated = %d", n)
	}
}
