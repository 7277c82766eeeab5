// internal/extraction/extractor.go
package extraction

import (
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/citefill/internal/labels"
)

const (
	unknownEntityType = "Unknown"
	unknownFieldName  = "Unknown Field"
)

// Extract builds the labelled field list for a document from three sources, in
// increasing order of trust: regular expressions over the raw text, entities
// recognised by the backend, and the backend's structured form fields.
//
// Later sources merge into earlier fields by label (see labels.Matches) and keep
// the merged field's position; unmatched entries are appended. The function is
// pure and the output is deterministic for identical input.
func Extract(rawText string, entities []Entity, formFields []FormFieldPair) []Field {
	fields := extractPatterns(rawText)
	fields = mergeEntities(fields, entities)
	fields = mergeFormFields(fields, formFields)
	return fields
}

// extractPatterns runs every category's expressions and keeps the longest capture.
func extractPatterns(text string) []Field {
	fields := make([]Field, 0, len(categories))
	if text == "" {
		return fields
	}

	for _, c := range categories {
		best := ""
		for _, re := range c.Patterns {
			m := re.FindStringSubmatch(text)
			if len(m) < 2 {
				continue
			}
			candidate := strings.TrimSpace(m[1])
			if utf8.RuneCountInString(candidate) > utf8.RuneCountInString(best) {
				best = candidate
			}
		}
		if best != "" {
			fields = append(fields, Field{Label: c.Label, Value: best, Confidence: PatternConfidence})
		}
	}
	return fields
}

func mergeEntities(fields []Field, entities []Entity) []Field {
	for _, e := range entities {
		entityType := e.Type
		if entityType == "" {
			entityType = unknownEntityType
		}
		confidence := e.Confidence
		if confidence == 0 {
			confidence = DefaultEntityConfidence
		}
		if e.Text == "" || confidence <= MinEntityConfidence {
			continue
		}

		idx := findByLabel(fields, entityType)
		switch {
		case idx < 0:
			fields = append(fields, Field{Label: entityType, Value: e.Text, Confidence: confidence})
		case confidence > fields[idx].Confidence:
			fields[idx].Value = e.Text
			fields[idx].Confidence = confidence
		}
	}
	return fields
}

func mergeFormFields(fields []Field, pairs []FormFieldPair) []Field {
	for _, p := range pairs {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = unknownFieldName
		}
		value := strings.TrimSpace(p.Value)
		if value == "" {
			continue
		}

		idx := findByLabel(fields, name)
		switch {
		case idx < 0:
			fields = append(fields, Field{Label: name, Value: value, Confidence: FormFieldConfidence})
		case utf8.RuneCountInString(value) > utf8.RuneCountInString(fields[idx].Value):
			// Longer OCR output is taken to be the more complete reading.
			fields[idx].Value = value
			fields[idx].Confidence = FormFieldConfidence
		}
	}
	return fields
}

// findByLabel returns the index of the first field whose label matches label, or -1.
func findByLabel(fields []Field, label string) int {
	for i := range fields {
		if labels.Matches(fields[i].Label, label) {
			return i
		}
	}
	return -1
}
