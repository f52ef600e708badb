package notion

import (
	"strconv"
	"strings"
)

// PropertyType is the "type" discriminator of a Notion page property.
type PropertyType string

const (
	PropertyTypeNumber   PropertyType = "number"
	PropertyTypeRichText PropertyType = "rich_text"
	PropertyTypeTitle    PropertyType = "title"
)

// Page is a database row. Only the fields the collector looks at are decoded.
type Page struct {
	ID         string              `json:"id"`
	Properties map[string]Property `json:"properties"`
}

// Property is a tagged page property. Notion sends many other kinds; they decode
// into a Property with only Type set and are ignored downstream.
type Property struct {
	Type     PropertyType `json:"type"`
	Number   *float64     `json:"number,omitempty"`
	RichText []RichText   `json:"rich_text,omitempty"`
	Title    []RichText   `json:"title,omitempty"`
}

// RichText is one segment of a rich text or title value.
type RichText struct {
	PlainText string `json:"plain_text"`
}

// NumberValue renders the number the way it is displayed in Notion, without exponent
// or trailing zeros. Unset and zero numbers report false.
func (p Property) NumberValue() (string, bool) {
	if p.Number == nil || *p.Number == 0 {
		return "", false
	}
	return strconv.FormatFloat(*p.Number, 'f', -1, 64), true
}

// RichTextValue joins all rich text segments.
func (p Property) RichTextValue() (string, bool) {
	return joinPlainText(p.RichText)
}

// TitleValue joins all title segments.
func (p Property) TitleValue() (string, bool) {
	return joinPlainText(p.Title)
}

func joinPlainText(segments []RichText) (string, bool) {
	if len(segments) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, segment := range segments {
		b.WriteString(segment.PlainText)
	}
	value := strings.TrimSpace(b.String())
	return value, value != ""
}
