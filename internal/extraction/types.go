// internal/extraction/types.go
package extraction

// Confidence scores assigned by source. They are heuristics, not calibrated
// probabilities.
const (
	PatternConfidence       = 0.8
	DefaultEntityConfidence = 0.5
	FormFieldConfidence     = 0.9

	// MinEntityConfidence is the exclusive lower bound an entity must clear to be used.
	MinEntityConfidence = 0.3
)

// Field is one labelled value pulled out of a document.
type Field struct {
	Label      string  `json:"label"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Entity is a typed span recognised by the document backend.
// A zero Confidence means the backend did not report one.
type Entity struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// FormFieldPair is a key/value pair detected by the backend's form parser.
type FormFieldPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Result is the outcome of processing one document.
type Result struct {
	Text   string  `json:"text"`
	Fields []Field `json:"extractedFields"`
}
