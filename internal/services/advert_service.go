package services

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grantfinder/adverts/internal/models"
	"github.com/grantfinder/adverts/internal/schema"
)

// AdvertStore abstracts the persistence operations the advert workflow needs.
type AdvertStore interface {
	InsertAdvert(a *models.Advert) error
	// NameTaken reports whether an advert with this name already exists in
	// the scheme. Backed by a unique index; the service check exists to turn
	// the common case into a field-level validation error.
	NameTaken(schemeID, name string) (bool, error)
	GetAdvert(id string) (*models.Advert, error)
	GetAdvertStatus(id string) (*AdvertStatusRead, error)
	PatchSectionPage(advertID, sectionID, pageID string, patch PagePatch) error
	// CompareAndSwapStatus commits the transition only if the advert is still
	// in the expected status. A false return means another editor got there
	// first.
	CompareAndSwapStatus(advertID string, expected, next models.AdvertStatus, stamp TransitionStamp) (bool, error)
	ListDueScheduled(now time.Time) ([]string, error)
	AddAudit(entry AuditEntry)
}

// AdvertStatusRead is the light status read used by transition guards and the
// conflict check. LastUpdatedByEmail is still ciphertext here.
type AdvertStatusRead struct {
	Status             models.AdvertStatus
	ContentfulSlug     string
	LastUpdated        time.Time
	LastUpdatedByEmail string
}

// PagePatch is the outgoing update for one submitted page. Status stays nil
// when the submission carried no completion flag; the store must then leave
// the page status untouched rather than write a default.
type PagePatch struct {
	Questions []*QuestionPatch   `json:"questions"`
	Status    *models.PageStatus `json:"status,omitempty"`
	UpdatedAt time.Time          `json:"-"`
	UpdatedBy string             `json:"-"` // ciphertext
}

// TransitionStamp carries the audit fields a committed transition writes
// alongside the new status.
type TransitionStamp struct {
	Now            time.Time
	EditorEmail    string // ciphertext; empty leaves the stored value alone
	ContentfulSlug string // set on first publish only
	OpeningTime    *time.Time
	ClosingTime    *time.Time
}

type AuditEntry struct {
	Time   time.Time
	Actor  string
	Action string
	Target string
	Note   string
}

// EmailCipher protects the editor identity at rest. DecryptOrPlaceholder
// never fails; a missing or undecryptable value renders as a deleted user.
type EmailCipher interface {
	Encrypt(plaintext string) (string, error)
	DecryptOrPlaceholder(ciphertext string) string
}

// ListingIndex mirrors live adverts into the public search listing.
type ListingIndex interface {
	Index(ctx context.Context, a *models.Advert) error
	Remove(ctx context.Context, advertID string) error
}

// AdvertService owns the advert lifecycle: creation from the template, page
// saves through the codec, and the publish/schedule/unpublish/unschedule
// transitions with their guards and conflict detection.
type AdvertService struct {
	store       AdvertStore
	codec       *Codec
	cipher      EmailCipher
	listing     ListingIndex
	template    *schema.Template
	now         func() time.Time
	idGenerator func() string
}

func NewAdvertService(store AdvertStore, codec *Codec, cipher EmailCipher, listing ListingIndex, template *schema.Template) *AdvertService {
	return &AdvertService{
		store:       store,
		codec:       codec,
		cipher:      cipher,
		listing:     listing,
		template:    template,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: uuid.NewString,
	}
}

// CreateAdvert seeds a new draft advert from the template.
func (s *AdvertService) CreateAdvert(schemeID, name, editorEmail string) (*models.Advert, error) {
	if strings.TrimSpace(schemeID) == "" {
		return nil, NewInvalidError("schemeId required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, NewFieldError("name", "Enter the name of your advert")
	}
	taken, err := s.store.NameTaken(schemeID, strings.TrimSpace(name))
	if err != nil {
		return nil, NewBadGatewayError("check advert name: " + err.Error())
	}
	if taken {
		return nil, NewFieldError("name", "An advert with this name already exists")
	}
	a := s.template.Build(s.idGenerator(), schemeID, strings.TrimSpace(name))
	a.Created = s.now()
	a.LastUpdated = a.Created
	enc, err := s.cipher.Encrypt(editorEmail)
	if err != nil {
		return nil, NewBadGatewayError("encrypt editor email: " + err.Error())
	}
	a.LastUpdatedByEmail = enc
	if err := s.store.InsertAdvert(a); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: a.Created, Actor: editorEmail, Action: "create_advert", Target: a.ID, Note: a.Name})
	return a, nil
}

// PageView and SectionView carry derived statuses for the summary screen.
type PageView struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Status models.PageStatus `json:"status"`
}

type SectionView struct {
	ID     string               `json:"id"`
	Title  string               `json:"title"`
	Status models.SectionStatus `json:"status"`
	Pages  []PageView           `json:"pages"`
}

// AdvertSummary is the section-overview read: everything the summary screen
// needs to gate the publish button and explain the advert's state.
type AdvertSummary struct {
	ID                string              `json:"id"`
	SchemeID          string              `json:"schemeId"`
	Name              string              `json:"name"`
	Status            models.AdvertStatus `json:"status"`
	IsPublishDisabled bool                `json:"isPublishDisabled"`
	ContentfulSlug    string              `json:"contentfulSlug,omitempty"`
	LastUpdated       time.Time           `json:"lastUpdated"`
	LastUpdatedBy     string              `json:"lastUpdatedBy"`
	Sections          []SectionView       `json:"sections"`
}

// GetSummary recomputes section statuses and the publish guard flag from the
// current persisted state. The flag only drives the client display; the
// authoritative guard runs again inside SubmitPublish.
func (s *AdvertService) GetSummary(advertID string) (*AdvertSummary, error) {
	a, err := s.store.GetAdvert(advertID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("advert not found")
	}
	out := &AdvertSummary{
		ID:                a.ID,
		SchemeID:          a.SchemeID,
		Name:              a.Name,
		Status:            a.Status,
		IsPublishDisabled: a.PublishDisabled(),
		ContentfulSlug:    a.ContentfulSlug,
		LastUpdated:       a.LastUpdated,
		LastUpdatedBy:     s.cipher.DecryptOrPlaceholder(a.LastUpdatedByEmail),
	}
	for _, sec := range a.Sections {
		sv := SectionView{ID: sec.ID, Title: sec.Title, Status: sec.Status()}
		for _, p := range sec.Pages {
			sv.Pages = append(sv.Pages, PageView{ID: p.ID, Title: p.Title, Status: p.Status})
		}
		out.Sections = append(out.Sections, sv)
	}
	return out, nil
}

// SavePage encodes the submitted form for every question on the page and
// patches the store. jsEnabled reflects whether the rich editor ran in the
// browser; it changes how RICH_TEXT values are interpreted.
func (s *AdvertService) SavePage(advertID, sectionID, pageID string, form url.Values, jsEnabled bool, editorEmail string) error {
	a, err := s.store.GetAdvert(advertID)
	if err != nil {
		return err
	}
	if a == nil {
		return NewNotFoundError("advert not found")
	}
	section := a.Section(sectionID)
	if section == nil {
		return NewNotFoundError("section not found")
	}
	page := section.Page(pageID)
	if page == nil {
		return NewNotFoundError("page not found")
	}

	enc, err := s.cipher.Encrypt(editorEmail)
	if err != nil {
		return NewBadGatewayError("encrypt editor email: " + err.Error())
	}
	patch := PagePatch{
		Status:    DeriveSavedPageStatus(form.Get("completed"), a.FirstPublishedDate != nil, page.Status),
		UpdatedAt: s.now(),
		UpdatedBy: enc,
	}
	for _, q := range page.Questions {
		qp, err := s.codec.EncodeQuestion(q, form, jsEnabled)
		if err != nil {
			return err
		}
		patch.Questions = append(patch.Questions, qp)
	}
	return s.store.PatchSectionPage(advertID, sectionID, pageID, patch)
}

// PublishOutcome reports where a publish-intent submission landed.
type PublishOutcome struct {
	Status    models.AdvertStatus `json:"status"`
	Scheduled bool                `json:"scheduled"`
}

// SubmitPublish handles a publish-intent submission. expected is the status
// the editor's session read at form-load time; a mismatch against the fresh
// read, or a lost compare-and-swap, surfaces as a multi-editor conflict. The
// completion guard is re-evaluated here from current store state, never
// trusted from the client's stale flag.
func (s *AdvertService) SubmitPublish(ctx context.Context, advertID string, expected models.AdvertStatus, editorEmail string) (*PublishOutcome, error) {
	if !expected.Valid() {
		return nil, NewInvalidError("unknown advert status")
	}
	read, err := s.readStatus(advertID)
	if err != nil {
		return nil, err
	}
	if read.Status != expected {
		return nil, s.conflict(read)
	}

	a, err := s.store.GetAdvert(advertID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("advert not found")
	}
	if a.PublishDisabled() {
		return nil, NewGuardError("every section must be completed before the advert can be published")
	}

	ev := EventPublish
	openingParts := openingDateParts(a)
	if DecideTransition(openingParts, s.now()) == TransitionScheduled {
		ev = EventSchedule
	}
	next, err := Transition(read.Status, ev)
	if err != nil {
		return nil, err
	}

	enc, err := s.cipher.Encrypt(editorEmail)
	if err != nil {
		return nil, NewBadGatewayError("encrypt editor email: " + err.Error())
	}
	stamp := TransitionStamp{Now: s.now(), EditorEmail: enc}
	if a.ContentfulSlug == "" {
		stamp.ContentfulSlug = slugify(a.Name)
	}
	if t, ok := collapseDate(openingParts); ok {
		stamp.OpeningTime = &t
	}
	if t, ok := collapseDate(closingDateParts(a)); ok {
		stamp.ClosingTime = &t
	}

	ok, err := s.store.CompareAndSwapStatus(advertID, expected, next, stamp)
	if err != nil {
		return nil, NewBadGatewayError("save advert status: " + err.Error())
	}
	if !ok {
		return nil, s.freshConflict(advertID)
	}
	s.store.AddAudit(AuditEntry{Time: stamp.Now, Actor: editorEmail, Action: strings.ToLower(string(ev)), Target: advertID})

	if next == models.StatusPublished {
		s.mirrorPublish(ctx, advertID)
	}
	return &PublishOutcome{Status: next, Scheduled: next == models.StatusScheduled}, nil
}

// ConfirmOutcome reports the result of an unpublish/unschedule confirmation.
// Confirmed false means the editor chose to keep the advert as it was; the
// caller should return to the summary view without error.
type ConfirmOutcome struct {
	Status    models.AdvertStatus `json:"status"`
	Confirmed bool                `json:"confirmed"`
}

// SubmitUnpublish handles the unpublish confirmation form. The confirmation
// is a mandatory binary choice; anything else is a field-level validation
// error so the same form is re-presented, never a silent default. expected is
// the status the editor's session read at form-load time: if another editor
// moved the advert since, even to a state that would itself allow an
// unpublish, the submission is a conflict, not a write against the new state.
func (s *AdvertService) SubmitUnpublish(ctx context.Context, advertID string, expected models.AdvertStatus, confirmation, editorEmail string) (*ConfirmOutcome, error) {
	if confirmation != "true" && confirmation != "false" {
		return nil, NewFieldError("confirmation", "You must select either 'Yes, unpublish my advert' or 'No, keep my advert published'")
	}
	read, err := s.readStatus(advertID)
	if err != nil {
		return nil, err
	}
	if read.Status != expected {
		return nil, s.conflict(read)
	}
	if confirmation == "false" {
		return &ConfirmOutcome{Status: read.Status, Confirmed: false}, nil
	}
	next, err := Transition(read.Status, EventUnpublish)
	if err != nil {
		return nil, err
	}
	enc, err := s.cipher.Encrypt(editorEmail)
	if err != nil {
		return nil, NewBadGatewayError("encrypt editor email: " + err.Error())
	}
	ok, err := s.store.CompareAndSwapStatus(advertID, models.StatusPublished, next, TransitionStamp{Now: s.now(), EditorEmail: enc})
	if err != nil {
		return nil, NewBadGatewayError("save advert status: " + err.Error())
	}
	if !ok {
		return nil, s.freshConflict(advertID)
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: editorEmail, Action: "unpublish", Target: advertID})
	if s.listing != nil {
		if err := s.listing.Remove(ctx, advertID); err != nil {
			log.Printf("advert service: remove %s from listing: %v", advertID, err)
		}
	}
	return &ConfirmOutcome{Status: next, Confirmed: true}, nil
}

// SubmitUnschedule handles the unschedule confirmation form with the same
// mandatory binary choice and session-expectation check as SubmitUnpublish.
func (s *AdvertService) SubmitUnschedule(ctx context.Context, advertID string, expected models.AdvertStatus, confirmation, editorEmail string) (*ConfirmOutcome, error) {
	if confirmation != "true" && confirmation != "false" {
		return nil, NewFieldError("confirmation", "You must select either 'Yes, unschedule my advert' or 'No, keep my advert scheduled'")
	}
	read, err := s.readStatus(advertID)
	if err != nil {
		return nil, err
	}
	if read.Status != expected {
		return nil, s.conflict(read)
	}
	if confirmation == "false" {
		return &ConfirmOutcome{Status: read.Status, Confirmed: false}, nil
	}
	next, err := Transition(read.Status, EventUnschedule)
	if err != nil {
		return nil, err
	}
	enc, err := s.cipher.Encrypt(editorEmail)
	if err != nil {
		return nil, NewBadGatewayError("encrypt editor email: " + err.Error())
	}
	ok, err := s.store.CompareAndSwapStatus(advertID, models.StatusScheduled, next, TransitionStamp{Now: s.now(), EditorEmail: enc})
	if err != nil {
		return nil, NewBadGatewayError("save advert status: " + err.Error())
	}
	if !ok {
		return nil, s.freshConflict(advertID)
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: editorEmail, Action: "unschedule", Target: advertID})
	return &ConfirmOutcome{Status: next, Confirmed: true}, nil
}

// ActivateDueAdverts flips scheduled adverts whose opening instant has passed
// to published. It is invoked from the CLI on an external schedule; the core
// owns no timer. A lost compare-and-swap means an editor unscheduled the
// advert underneath the sweep, which is fine: skip it.
func (s *AdvertService) ActivateDueAdverts(ctx context.Context) (int, error) {
	ids, err := s.store.ListDueScheduled(s.now())
	if err != nil {
		return 0, err
	}
	activated := 0
	for _, id := range ids {
		ok, err := s.store.CompareAndSwapStatus(id, models.StatusScheduled, models.StatusPublished, TransitionStamp{Now: s.now()})
		if err != nil {
			return activated, err
		}
		if !ok {
			continue
		}
		activated++
		s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "scheduler", Action: "publish", Target: id})
		s.mirrorPublish(ctx, id)
	}
	return activated, nil
}

func (s *AdvertService) readStatus(advertID string) (*AdvertStatusRead, error) {
	read, err := s.store.GetAdvertStatus(advertID)
	if err != nil {
		return nil, NewBadGatewayError("read advert status: " + err.Error())
	}
	if read == nil {
		return nil, NewNotFoundError("advert not found")
	}
	return read, nil
}

func (s *AdvertService) conflict(read *AdvertStatusRead) error {
	return &ConflictError{
		LastUpdatedBy: s.cipher.DecryptOrPlaceholder(read.LastUpdatedByEmail),
		LastUpdated:   read.LastUpdated,
		CurrentStatus: read.Status,
	}
}

// freshConflict re-reads after a lost compare-and-swap so the conflict
// outcome names the winning editor, not this one.
func (s *AdvertService) freshConflict(advertID string) error {
	read, err := s.readStatus(advertID)
	if err != nil {
		return err
	}
	return s.conflict(read)
}

// mirrorPublish pushes the advert into the public listing. The store is the
// source of truth; a listing failure is logged and does not undo the
// transition.
func (s *AdvertService) mirrorPublish(ctx context.Context, advertID string) {
	if s.listing == nil {
		return
	}
	a, err := s.store.GetAdvert(advertID)
	if err != nil || a == nil {
		log.Printf("advert service: reload %s for listing: %v", advertID, err)
		return
	}
	if err := s.listing.Index(ctx, a); err != nil {
		log.Printf("advert service: index %s in listing: %v", advertID, err)
	}
}

func openingDateParts(a *models.Advert) []string {
	if q := a.Question(models.OpeningDateQuestionID); q != nil {
		return q.MultiResponse
	}
	return nil
}

func closingDateParts(a *models.Advert) []string {
	if q := a.Question(models.ClosingDateQuestionID); q != nil {
		return q.MultiResponse
	}
	return nil
}

// slugify derives the public listing slug from the advert name on first
// publish. The slug is stable afterwards.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
