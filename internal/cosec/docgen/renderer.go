package docgen

import (
	"bytes"
	"fmt"

	"github.com/lukasjarosch/go-docx"
)

// Renderer merges a context into a template, producing a document in the
// template's own format.
type Renderer interface {
	Render(template []byte, c Context) ([]byte, error)
}

// DocxRenderer fills {placeholder} markers in .docx templates. The template
// bytes are opened afresh on every call, so one asset can serve a batch.
type DocxRenderer struct{}

func (DocxRenderer) Render(template []byte, c Context) ([]byte, error) {
	doc, err := docx.OpenBytes(template)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer doc.Close()

	values := docx.PlaceholderMap{}
	for k, v := range c.Placeholders() {
		values[k] = v
	}
	if err := doc.ReplaceAll(values); err != nil {
		return nil, fmt.Errorf("fill placeholders: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	return buf.Bytes(), nil
}
