package studygen

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Document is one named source in a document-set Content, already extracted
// from uploaded material by the ingestion collaborator.
type Document struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Text string    `json:"text"`
}

// Content is either a single text blob or an ordered set of documents.
// Exactly one representation is populated.
type Content struct {
	Text      string
	Documents []Document
}

func TextContent(text string) Content {
	return Content{Text: text}
}

func DocumentContent(docs []Document) Content {
	return Content{Documents: docs}
}

func (c Content) IsDocumentSet() bool {
	return len(c.Documents) > 0
}

// Chars counts content runes. For document sets it includes the rendered
// per-document headers, since that is what generation calls actually see.
func (c Content) Chars() int {
	if !c.IsDocumentSet() {
		return utf8.RuneCountInString(c.Text)
	}
	total := 0
	for _, d := range c.Documents {
		total += utf8.RuneCountInString(renderDocument(d))
	}
	return total
}

// Flatten renders the content as a single display string, documents separated
// by blank lines with a === name === header each.
func (c Content) Flatten() string {
	if !c.IsDocumentSet() {
		return c.Text
	}
	parts := make([]string, 0, len(c.Documents))
	for _, d := range c.Documents {
		parts = append(parts, renderDocument(d))
	}
	return strings.Join(parts, "\n\n")
}

func renderDocument(d Document) string {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = "document"
	}
	return fmt.Sprintf("=== %s ===\n%s", name, d.Text)
}

// Label identifies a document to callers in warnings and outcome metadata.
func (d Document) Label() string {
	if strings.TrimSpace(d.Name) != "" {
		return d.Name
	}
	if d.ID != uuid.Nil {
		return d.ID.String()
	}
	return "document"
}
