// Package listing mirrors live adverts into the public search index. The
// sqlite store stays the source of truth; the index is a read model for the
// public listing and is rebuilt from publish/unpublish events.
package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/grantfinder/adverts/internal/models"
)

type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	logger *log.Logger
}

func NewElasticIndex(addresses []string, index string, logger *log.Logger) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch client: %w", err)
	}
	return &ElasticIndex{client: client, index: index, logger: logger}, nil
}

// advertDocument is the public listing's view of an advert. Content beyond
// these fields stays in the store; the listing only needs what it searches
// and displays.
type advertDocument struct {
	ID          string     `json:"id"`
	SchemeID    string     `json:"schemeId"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	OpeningTime *time.Time `json:"openingTime,omitempty"`
	ClosingTime *time.Time `json:"closingTime,omitempty"`
	IndexedAt   time.Time  `json:"indexedAt"`
}

func (e *ElasticIndex) Index(ctx context.Context, a *models.Advert) error {
	doc := advertDocument{
		ID:          a.ID,
		SchemeID:    a.SchemeID,
		Name:        a.Name,
		Slug:        a.ContentfulSlug,
		OpeningTime: a.OpeningTime,
		ClosingTime: a.ClosingTime,
		IndexedAt:   time.Now().UTC(),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal advert document: %w", err)
	}
	res, err := e.client.Index(e.index, bytes.NewReader(body),
		e.client.Index.WithDocumentID(a.ID),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index advert %s: %w", a.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index advert %s: %s", a.ID, res.Status())
	}
	e.logger.Printf("indexed advert %s as %s", a.ID, doc.Slug)
	return nil
}

// Remove deletes the advert from the listing. A document that was never
// indexed is not an error.
func (e *ElasticIndex) Remove(ctx context.Context, advertID string) error {
	res, err := e.client.Delete(e.index, advertID, e.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("remove advert %s: %w", advertID, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("remove advert %s: %s", advertID, res.Status())
	}
	return nil
}
