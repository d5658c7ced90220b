package services

import (
	"net/url"
	"strings"

	"github.com/grantfinder/adverts/internal/models"
)

// QuestionPatch is the canonical per-question update the store persists.
// Seen is always true once the question's page has been submitted, whether or
// not its value changed.
type QuestionPatch struct {
	ID            string   `json:"id"`
	Seen          bool     `json:"seen"`
	Response      string   `json:"response,omitempty"`
	MultiResponse []string `json:"multiResponse,omitempty"`
}

// RichTextTransformer renders editor HTML into its serialized structured
// document representation.
type RichTextTransformer func(html string) ([]byte, error)

// Codec turns raw submitted form values into QuestionPatch values, keyed by
// the question's declared response type. The form is the full flat key/value
// map of the submitted page; multi-part inputs use suffixed keys
// ("{id}-day", "{id}-month", ...).
type Codec struct {
	transform RichTextTransformer
}

func NewCodec(transform RichTextTransformer) *Codec {
	return &Codec{transform: transform}
}

var dateSuffixes = []string{"day", "month", "year", "time"}

// EncodeQuestion builds the patch for one question from the submitted form.
//
//   - DATE always emits a 4-element multiResponse; absent parts stay empty
//     strings. Partial dates are preserved verbatim, not validated here.
//   - LIST emits whatever was submitted as an array; a single selection
//     arrives as a 1-element array.
//   - RICH_TEXT emits [html, structured document JSON]. Without client-side
//     JS the typed text is wrapped as <p>...</p> exactly once.
//   - Everything else passes the scalar through as response.
func (c *Codec) EncodeQuestion(q *models.Question, form url.Values, jsEnabled bool) (*QuestionPatch, error) {
	patch := &QuestionPatch{ID: q.ID, Seen: true}

	switch q.ResponseType {
	case models.ResponseDate:
		parts := make([]string, len(dateSuffixes))
		for i, suffix := range dateSuffixes {
			parts[i] = form.Get(q.ID + "-" + suffix)
		}
		patch.MultiResponse = parts

	case models.ResponseList:
		vals := form[q.ID]
		if vals == nil {
			vals = []string{}
		}
		patch.MultiResponse = vals

	case models.ResponseRichText:
		html := form.Get(q.ID)
		if !jsEnabled && !strings.HasPrefix(strings.TrimSpace(html), "<p>") {
			html = "<p>" + html + "</p>"
		}
		doc, err := c.transform(html)
		if err != nil {
			return nil, NewBadGatewayError("rich text transform: " + err.Error())
		}
		patch.MultiResponse = []string{html, string(doc)}

	default:
		patch.Response = form.Get(q.ID)
	}

	return patch, nil
}
