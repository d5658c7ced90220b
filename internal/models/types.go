package models

import "time"

// AdvertStatus is the publication lifecycle state of an advert. Every advert
// carries exactly one of the five values below; transitions between them are
// owned by the services package.
type AdvertStatus string

const (
	StatusDraft       AdvertStatus = "DRAFT"
	StatusUnscheduled AdvertStatus = "UNSCHEDULED"
	StatusScheduled   AdvertStatus = "SCHEDULED"
	StatusPublished   AdvertStatus = "PUBLISHED"
	StatusUnpublished AdvertStatus = "UNPUBLISHED"
)

// Valid reports whether s is one of the five lifecycle states.
func (s AdvertStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusUnscheduled, StatusScheduled, StatusPublished, StatusUnpublished:
		return true
	}
	return false
}

// PageStatus records the submitter's "mark as complete" intent for a page.
// It is set explicitly on submission, not derived from question fill-state.
type PageStatus string

const (
	PageNotStarted PageStatus = "NOT_STARTED"
	PageInProgress PageStatus = "IN_PROGRESS"
	PageCompleted  PageStatus = "COMPLETED"
	// PageChanged marks a completed page edited after the advert was
	// published; it must be reconfirmed before the next publish.
	PageChanged PageStatus = "CHANGED"
)

// SectionStatus is always derived from the statuses of the section's pages.
type SectionStatus string

const (
	SectionNotStarted SectionStatus = "NOT_STARTED"
	SectionInProgress SectionStatus = "IN_PROGRESS"
	SectionCompleted  SectionStatus = "COMPLETED"
)

// ResponseType declares how a question's submitted value is encoded.
type ResponseType string

const (
	ResponseShortText ResponseType = "SHORT_TEXT"
	ResponseLongText  ResponseType = "LONG_TEXT"
	ResponseRichText  ResponseType = "RICH_TEXT"
	ResponseList      ResponseType = "LIST"
	ResponseInteger   ResponseType = "INTEGER"
	ResponseDate      ResponseType = "DATE"
	ResponseCurrency  ResponseType = "CURRENCY"
)

// Well-known question IDs the publication workflow reads directly.
const (
	OpeningDateQuestionID = "grantApplicationOpenDate"
	ClosingDateQuestionID = "grantApplicationCloseDate"
)

// Question holds one answered (or unanswered) form question. A question uses
// either the scalar Response or MultiResponse, never both. DATE questions
// carry a 4-element MultiResponse (day, month, year, time); RICH_TEXT a
// 2-element one (rendered HTML, serialized structured document); LIST one
// element per selection.
type Question struct {
	ID            string       `json:"id"`
	Title         string       `json:"title,omitempty"`
	ResponseType  ResponseType `json:"responseType"`
	Response      string       `json:"response,omitempty"`
	MultiResponse []string     `json:"multiResponse,omitempty"`
	Seen          bool         `json:"seen"`
}

type Page struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Questions []*Question `json:"questions"`
	Status    PageStatus  `json:"status"`
}

type Section struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Pages []*Page `json:"pages"`
}

// Status derives the section status: NOT_STARTED when no page has been
// touched, COMPLETED when every page is completed, IN_PROGRESS otherwise.
func (s *Section) Status() SectionStatus {
	if len(s.Pages) == 0 {
		return SectionNotStarted
	}
	notStarted, completed := true, true
	for _, p := range s.Pages {
		if p.Status != PageNotStarted {
			notStarted = false
		}
		if p.Status != PageCompleted {
			completed = false
		}
	}
	switch {
	case notStarted:
		return SectionNotStarted
	case completed:
		return SectionCompleted
	default:
		return SectionInProgress
	}
}

// Page returns the page with the given ID, or nil.
func (s *Section) Page(id string) *Page {
	for _, p := range s.Pages {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Advert is the publishable description of a grant scheme. Sections keep
// their creation order; ordering drives numbering on the summary view.
type Advert struct {
	ID             string       `json:"id"`
	SchemeID       string       `json:"schemeId"`
	Name           string       `json:"name"`
	Status         AdvertStatus `json:"status"`
	Sections       []*Section   `json:"sections"`
	ContentfulSlug string       `json:"contentfulSlug,omitempty"`

	// Opening/closing instants, collapsed from the date questions once all
	// their components are populated. Nil until then.
	OpeningTime *time.Time `json:"openingTime,omitempty"`
	ClosingTime *time.Time `json:"closingTime,omitempty"`

	Created             time.Time  `json:"created"`
	LastUpdated         time.Time  `json:"lastUpdated"`
	FirstPublishedDate  *time.Time `json:"firstPublishedDate,omitempty"`
	LastPublishedDate   *time.Time `json:"lastPublishedDate,omitempty"`
	LastUnpublishedDate *time.Time `json:"lastUnpublishedDate,omitempty"`
	UnpublishedDate     *time.Time `json:"unpublishedDate,omitempty"`

	// LastUpdatedByEmail is ciphertext at rest; it is decrypted only when a
	// summary or conflict outcome needs to name the editor.
	LastUpdatedByEmail string `json:"-"`
}

// PublishDisabled reports whether publishing must be blocked: true iff any
// section is not completed. Recomputed on every read, never cached.
func (a *Advert) PublishDisabled() bool {
	for _, s := range a.Sections {
		if s.Status() != SectionCompleted {
			return true
		}
	}
	return false
}

// Section returns the section with the given ID, or nil.
func (a *Advert) Section(id string) *Section {
	for _, s := range a.Sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Question finds a question anywhere in the advert by ID, or nil.
func (a *Advert) Question(id string) *Question {
	for _, s := range a.Sections {
		for _, p := range s.Pages {
			for _, q := range p.Questions {
				if q.ID == id {
					return q
				}
			}
		}
	}
	return nil
}
