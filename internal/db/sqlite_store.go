package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/grantfinder/adverts/internal/models"
	"github.com/grantfinder/adverts/internal/services"
)

// SQLiteStore is the backing persistence collaborator for the advert
// workflow. All status writes go through CompareAndSwapStatus so the conflict
// detector has a single primitive to lean on.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ services.AdvertStore = (*SQLiteStore)(nil)

var sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

type advertRow struct {
	ID              string         `db:"id"`
	SchemeID        string         `db:"scheme_id"`
	Name            string         `db:"name"`
	Status          string         `db:"status"`
	ContentfulSlug  sql.NullString `db:"contentful_slug"`
	OpeningTime     *time.Time     `db:"opening_time"`
	ClosingTime     *time.Time     `db:"closing_time"`
	Created         time.Time      `db:"created"`
	LastUpdated     time.Time      `db:"last_updated"`
	FirstPublished  *time.Time     `db:"first_published"`
	LastPublished   *time.Time     `db:"last_published"`
	LastUnpublished *time.Time     `db:"last_unpublished"`
	UnpublishedDate *time.Time     `db:"unpublished_date"`
	LastUpdatedBy   sql.NullString `db:"last_updated_by_email"`
}

type sectionRow struct {
	ID    string `db:"id"`
	Title string `db:"title"`
}

type pageRow struct {
	ID        string `db:"id"`
	SectionID string `db:"section_id"`
	Title     string `db:"title"`
	Status    string `db:"status"`
}

type questionRow struct {
	ID            string         `db:"id"`
	PageID        string         `db:"page_id"`
	Title         sql.NullString `db:"title"`
	ResponseType  string         `db:"response_type"`
	Response      sql.NullString `db:"response"`
	MultiResponse sql.NullString `db:"multi_response"`
	Seen          int64          `db:"seen"`
}

func (s *SQLiteStore) InsertAdvert(a *models.Advert) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin insert advert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sb.Insert("adverts").
		Columns("id", "scheme_id", "name", "status", "created", "last_updated", "last_updated_by_email").
		Values(a.ID, a.SchemeID, a.Name, string(a.Status), a.Created, a.LastUpdated, toNullString(a.LastUpdatedByEmail)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert advert: %w", err)
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("insert advert: %w", err)
	}

	for si, section := range a.Sections {
		query, args, err := sb.Insert("sections").
			Columns("id", "advert_id", "title", "position").
			Values(section.ID, a.ID, section.Title, si).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert section: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("insert section %s: %w", section.ID, err)
		}
		for pi, page := range section.Pages {
			query, args, err := sb.Insert("pages").
				Columns("id", "advert_id", "section_id", "title", "status", "position").
				Values(page.ID, a.ID, section.ID, page.Title, string(page.Status), pi).
				ToSql()
			if err != nil {
				return fmt.Errorf("build insert page: %w", err)
			}
			if _, err := tx.Exec(query, args...); err != nil {
				return fmt.Errorf("insert page %s: %w", page.ID, err)
			}
			for qi, question := range page.Questions {
				multi, err := encodeMulti(question.MultiResponse)
				if err != nil {
					return err
				}
				query, args, err := sb.Insert("questions").
					Columns("id", "advert_id", "page_id", "title", "response_type", "response", "multi_response", "seen", "position").
					Values(question.ID, a.ID, page.ID, question.Title, string(question.ResponseType),
						toNullString(question.Response), multi, boolToInt64(question.Seen), qi).
					ToSql()
				if err != nil {
					return fmt.Errorf("build insert question: %w", err)
				}
				if _, err := tx.Exec(query, args...); err != nil {
					return fmt.Errorf("insert question %s: %w", question.ID, err)
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert advert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) NameTaken(schemeID, name string) (bool, error) {
	query, args, err := sb.Select("COUNT(*)").From("adverts").
		Where(sq.Eq{"scheme_id": schemeID, "name": name}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build count adverts by name: %w", err)
	}
	var n int
	if err := s.db.Get(&n, query, args...); err != nil {
		return false, fmt.Errorf("count adverts named %q: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetAdvert(id string) (*models.Advert, error) {
	var row advertRow
	query, args, err := sb.Select("*").From("adverts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select advert: %w", err)
	}
	if err := s.db.Get(&row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select advert %s: %w", id, err)
	}
	a := row.toModel()

	var sections []sectionRow
	query, args, err = sb.Select("id", "title").From("sections").
		Where(sq.Eq{"advert_id": id}).OrderBy("position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select sections: %w", err)
	}
	if err := s.db.Select(&sections, query, args...); err != nil {
		return nil, fmt.Errorf("select sections for %s: %w", id, err)
	}

	var pages []pageRow
	query, args, err = sb.Select("id", "section_id", "title", "status").From("pages").
		Where(sq.Eq{"advert_id": id}).OrderBy("position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select pages: %w", err)
	}
	if err := s.db.Select(&pages, query, args...); err != nil {
		return nil, fmt.Errorf("select pages for %s: %w", id, err)
	}

	var questions []questionRow
	query, args, err = sb.Select("id", "page_id", "title", "response_type", "response", "multi_response", "seen").
		From("questions").Where(sq.Eq{"advert_id": id}).OrderBy("position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select questions: %w", err)
	}
	if err := s.db.Select(&questions, query, args...); err != nil {
		return nil, fmt.Errorf("select questions for %s: %w", id, err)
	}

	pagesByID := map[string]*models.Page{}
	pagesBySection := map[string][]*models.Page{}
	for _, pr := range pages {
		page := &models.Page{ID: pr.ID, Title: pr.Title, Status: models.PageStatus(pr.Status)}
		pagesByID[pr.ID] = page
		pagesBySection[pr.SectionID] = append(pagesBySection[pr.SectionID], page)
	}
	for _, qr := range questions {
		page := pagesByID[qr.PageID]
		if page == nil {
			continue
		}
		multi, err := decodeMulti(qr.MultiResponse)
		if err != nil {
			return nil, err
		}
		page.Questions = append(page.Questions, &models.Question{
			ID:            qr.ID,
			Title:         qr.Title.String,
			ResponseType:  models.ResponseType(qr.ResponseType),
			Response:      qr.Response.String,
			MultiResponse: multi,
			Seen:          int64ToBool(qr.Seen),
		})
	}
	for _, sr := range sections {
		a.Sections = append(a.Sections, &models.Section{
			ID:    sr.ID,
			Title: sr.Title,
			Pages: pagesBySection[sr.ID],
		})
	}
	return a, nil
}

func (s *SQLiteStore) GetAdvertStatus(id string) (*services.AdvertStatusRead, error) {
	var row struct {
		Status        string         `db:"status"`
		Slug          sql.NullString `db:"contentful_slug"`
		LastUpdated   time.Time      `db:"last_updated"`
		LastUpdatedBy sql.NullString `db:"last_updated_by_email"`
	}
	query, args, err := sb.Select("status", "contentful_slug", "last_updated", "last_updated_by_email").
		From("adverts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select advert status: %w", err)
	}
	if err := s.db.Get(&row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select advert status %s: %w", id, err)
	}
	return &services.AdvertStatusRead{
		Status:             models.AdvertStatus(row.Status),
		ContentfulSlug:     row.Slug.String,
		LastUpdated:        row.LastUpdated,
		LastUpdatedByEmail: row.LastUpdatedBy.String,
	}, nil
}

// PatchSectionPage applies the codec output for one submitted page. The page
// status is only written when the patch carries one; an absent completion
// flag leaves the stored status untouched.
func (s *SQLiteStore) PatchSectionPage(advertID, sectionID, pageID string, patch services.PagePatch) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin patch page: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, qp := range patch.Questions {
		update := sb.Update("questions").
			Set("seen", boolToInt64(qp.Seen)).
			Where(sq.Eq{"advert_id": advertID, "page_id": pageID, "id": qp.ID})
		if qp.MultiResponse != nil {
			multi, err := encodeMulti(qp.MultiResponse)
			if err != nil {
				return err
			}
			update = update.Set("multi_response", multi).Set("response", nil)
		} else {
			update = update.Set("response", toNullString(qp.Response)).Set("multi_response", nil)
		}
		query, args, err := update.ToSql()
		if err != nil {
			return fmt.Errorf("build patch question: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("patch question %s: %w", qp.ID, err)
		}
	}

	if patch.Status != nil {
		query, args, err := sb.Update("pages").
			Set("status", string(*patch.Status)).
			Where(sq.Eq{"advert_id": advertID, "section_id": sectionID, "id": pageID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build patch page status: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("patch page status %s: %w", pageID, err)
		}
	}

	update := sb.Update("adverts").
		Set("last_updated", patch.UpdatedAt).
		Where(sq.Eq{"id": advertID})
	if patch.UpdatedBy != "" {
		update = update.Set("last_updated_by_email", patch.UpdatedBy)
	}
	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build stamp advert: %w", err)
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("stamp advert %s: %w", advertID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit patch page: %w", err)
	}
	return nil
}

// CompareAndSwapStatus commits a transition only while the advert is still in
// the expected status. It reports false, nil when another editor won the
// race; callers turn that into a conflict outcome.
func (s *SQLiteStore) CompareAndSwapStatus(advertID string, expected, next models.AdvertStatus, stamp services.TransitionStamp) (bool, error) {
	update := sb.Update("adverts").
		Set("status", string(next)).
		Set("last_updated", stamp.Now).
		Where(sq.Eq{"id": advertID, "status": string(expected)})
	if stamp.EditorEmail != "" {
		update = update.Set("last_updated_by_email", stamp.EditorEmail)
	}
	if stamp.ContentfulSlug != "" {
		update = update.Set("contentful_slug", stamp.ContentfulSlug)
	}
	if stamp.OpeningTime != nil {
		update = update.Set("opening_time", *stamp.OpeningTime)
	}
	if stamp.ClosingTime != nil {
		update = update.Set("closing_time", *stamp.ClosingTime)
	}
	switch next {
	case models.StatusPublished:
		update = update.
			Set("last_published", stamp.Now).
			Set("first_published", sq.Expr("COALESCE(first_published, ?)", stamp.Now))
	case models.StatusUnpublished:
		update = update.
			Set("last_unpublished", stamp.Now).
			Set("unpublished_date", stamp.Now)
	}
	query, args, err := update.ToSql()
	if err != nil {
		return false, fmt.Errorf("build status swap: %w", err)
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("swap status of %s: %w", advertID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap status of %s: %w", advertID, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListDueScheduled(now time.Time) ([]string, error) {
	query, args, err := sb.Select("id").From("adverts").
		Where(sq.Eq{"status": string(models.StatusScheduled)}).
		Where(sq.NotEq{"opening_time": nil}).
		Where(sq.LtOrEq{"opening_time": now}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select due adverts: %w", err)
	}
	var ids []string
	if err := s.db.Select(&ids, query, args...); err != nil {
		return nil, fmt.Errorf("select due adverts: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) AddAudit(entry services.AuditEntry) {
	query, args, err := sb.Insert("audit").
		Columns("at", "actor", "action", "target", "note").
		Values(entry.Time, entry.Actor, entry.Action, entry.Target, entry.Note).
		ToSql()
	if err != nil {
		log.Printf("sqlite store: build insert audit: %v", err)
		return
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		log.Printf("sqlite store: insert audit: %v", err)
	}
}

func (r advertRow) toModel() *models.Advert {
	return &models.Advert{
		ID:                  r.ID,
		SchemeID:            r.SchemeID,
		Name:                r.Name,
		Status:              models.AdvertStatus(r.Status),
		ContentfulSlug:      r.ContentfulSlug.String,
		OpeningTime:         r.OpeningTime,
		ClosingTime:         r.ClosingTime,
		Created:             r.Created,
		LastUpdated:         r.LastUpdated,
		FirstPublishedDate:  r.FirstPublished,
		LastPublishedDate:   r.LastPublished,
		LastUnpublishedDate: r.LastUnpublished,
		UnpublishedDate:     r.UnpublishedDate,
		LastUpdatedByEmail:  r.LastUpdatedBy.String,
	}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeMulti(values []string) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode multi response: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMulti(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, fmt.Errorf("decode multi response: %w", err)
	}
	return out, nil
}
