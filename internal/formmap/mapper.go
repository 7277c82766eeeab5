// internal/formmap/mapper.go
package formmap

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/citefill/internal/extraction"
	"github.com/xkilldash9x/citefill/internal/labels"
)

// Input describes one fillable element discovered on a target form page.
type Input struct {
	Selector    string `json:"selector"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	Label       string `json:"label"`
}

// DisplayName is the most human-readable identifier the input offers.
func (in Input) DisplayName() string {
	switch {
	case in.Label != "":
		return in.Label
	case in.Name != "":
		return in.Name
	default:
		return in.ID
	}
}

// Fillable reports whether the input may receive a value at all.
func (in Input) Fillable() bool {
	t := strings.ToLower(in.Type)
	return t != "submit" && t != "button"
}

// FieldMapping holds the value resolved for each canonical key. A key is present
// only when a matching extracted field was found.
type FieldMapping map[CanonicalKey]string

// Assignment pairs a form input with the value chosen for it.
type Assignment struct {
	Input Input        `json:"input"`
	Key   CanonicalKey `json:"key"`
	Value string       `json:"value"`
}

// BuildMapping resolves every canonical key against the extracted fields. For
// each key, the first field in input order whose label matches any of the key's
// aliases supplies the value.
func BuildMapping(fields []extraction.Field) FieldMapping {
	mapping := make(FieldMapping)
	for _, entry := range aliasTable {
		if v, ok := findFieldValue(fields, entry.Aliases); ok {
			mapping[entry.Key] = v
		}
	}
	return mapping
}

func findFieldValue(fields []extraction.Field, aliases []string) (string, bool) {
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		if labels.MatchesAny(f.Label, aliases...) >= 0 {
			return f.Value, true
		}
	}
	return "", false
}

// Assign pairs each input with at most one mapped value. The result has one
// entry per input, nil where nothing was assigned.
//
// Keys are tried in alias-table order and the first key whose name matches the
// input's label, name or placeholder (checked in that order) wins. Submit and
// button inputs are never assigned. A key may be assigned to several inputs.
func Assign(inputs []Input, mapping FieldMapping) []*Assignment {
	out := make([]*Assignment, len(inputs))
	for i, in := range inputs {
		if !in.Fillable() {
			continue
		}
		for _, entry := range aliasTable {
			value, ok := mapping[entry.Key]
			if !ok || value == "" {
				continue
			}
			if labels.MatchesAny(string(entry.Key), in.Label, in.Name, in.Placeholder) >= 0 {
				out[i] = &Assignment{Input: in, Key: entry.Key, Value: value}
				break
			}
		}
	}
	return out
}

var cssIdent = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)

// FillTarget returns the selector used to reach the input on the live page,
// preferring its id, then its name, then the positional selector captured at
// discovery.
func FillTarget(in Input) string {
	switch {
	case in.ID != "" && cssIdent.MatchString(in.ID):
		return "#" + in.ID
	case in.ID != "":
		return `[id="` + escapeAttr(in.ID) + `"]`
	case in.Name != "":
		return `[name="` + escapeAttr(in.Name) + `"]`
	default:
		return in.Selector
	}
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
