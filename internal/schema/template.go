// Package schema defines the advert template: the fixed section/page/question
// layout every new advert starts from. The layout ships embedded and can be
// overridden with a YAML file for non-production schemes.
package schema

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grantfinder/adverts/internal/models"
)

//go:embed template.yaml
var embeddedTemplate []byte

type Template struct {
	Sections []SectionDef `yaml:"sections"`
}

type SectionDef struct {
	ID    string    `yaml:"id"`
	Title string    `yaml:"title"`
	Pages []PageDef `yaml:"pages"`
}

type PageDef struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title"`
	Questions []QuestionDef `yaml:"questions"`
}

type QuestionDef struct {
	ID           string              `yaml:"id"`
	Title        string              `yaml:"title"`
	ResponseType models.ResponseType `yaml:"responseType"`
}

// Load reads the template from path, or the embedded default when path is
// empty. The result is validated before use.
func Load(path string) (*Template, error) {
	raw := embeddedTemplate
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read advert template: %w", err)
		}
		raw = b
	}
	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse advert template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks structural rules: at least one section, unique IDs across
// the whole template, and a known response type on every question.
func (t *Template) Validate() error {
	if len(t.Sections) == 0 {
		return fmt.Errorf("advert template has no sections")
	}
	seen := map[string]bool{}
	for _, s := range t.Sections {
		if s.ID == "" {
			return fmt.Errorf("section %q has no id", s.Title)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate id %q in advert template", s.ID)
		}
		seen[s.ID] = true
		for _, p := range s.Pages {
			if p.ID == "" || seen[p.ID] {
				return fmt.Errorf("missing or duplicate page id %q in section %s", p.ID, s.ID)
			}
			seen[p.ID] = true
			for _, q := range p.Questions {
				if q.ID == "" || seen[q.ID] {
					return fmt.Errorf("missing or duplicate question id %q on page %s", q.ID, p.ID)
				}
				seen[q.ID] = true
				switch q.ResponseType {
				case models.ResponseShortText, models.ResponseLongText, models.ResponseRichText,
					models.ResponseList, models.ResponseInteger, models.ResponseDate, models.ResponseCurrency:
				default:
					return fmt.Errorf("question %s has unknown response type %q", q.ID, q.ResponseType)
				}
			}
		}
	}
	return nil
}

// Build materializes a new draft advert from the template. Every page starts
// NOT_STARTED and every question unanswered.
func (t *Template) Build(id, schemeID, name string) *models.Advert {
	a := &models.Advert{
		ID:       id,
		SchemeID: schemeID,
		Name:     name,
		Status:   models.StatusDraft,
	}
	for _, sd := range t.Sections {
		section := &models.Section{ID: sd.ID, Title: sd.Title}
		for _, pd := range sd.Pages {
			page := &models.Page{ID: pd.ID, Title: pd.Title, Status: models.PageNotStarted}
			for _, qd := range pd.Questions {
				page.Questions = append(page.Questions, &models.Question{
					ID:           qd.ID,
					Title:        qd.Title,
					ResponseType: qd.ResponseType,
				})
			}
			section.Pages = append(section.Pages, page)
		}
		a.Sections = append(a.Sections, section)
	}
	return a
}
