package services

import "github.com/grantfinder/adverts/internal/models"

// DerivePageStatus maps the submitted "mark as complete" flag onto a page
// status. "Yes" means completed, "No" means in progress. An absent flag
// returns nil: the caller must omit status from the outgoing patch rather
// than send a false default.
func DerivePageStatus(completed string) *models.PageStatus {
	switch completed {
	case "Yes":
		s := models.PageCompleted
		return &s
	case "No":
		s := models.PageInProgress
		return &s
	}
	return nil
}

// DeriveSavedPageStatus resolves the status a page save writes. An explicit
// completion flag always wins. Without one, saving a completed page of an
// advert that has been published marks the page CHANGED, so it must be
// reconfirmed before the advert can be published again. Otherwise nil: the
// patch omits status entirely.
func DeriveSavedPageStatus(completed string, everPublished bool, current models.PageStatus) *models.PageStatus {
	if s := DerivePageStatus(completed); s != nil {
		return s
	}
	if everPublished && current == models.PageCompleted {
		s := models.PageChanged
		return &s
	}
	return nil
}
