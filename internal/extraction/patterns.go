// internal/extraction/patterns.go
package extraction

import "regexp"

// category is a named field together with the expressions that can yield it.
// Capture group 1 of each expression holds the candidate value.
type category struct {
	Label    string
	Patterns []*regexp.Regexp
}

// categories is evaluated in declaration order, which is also the order of the
// pattern-derived fields in the output. The expressions are intentionally loose;
// false positives are part of the trade-off for this stage.
var categories = []category{
	{
		Label: "License Plate",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:license\s*(?:plate)?|plate)\s*(?:number|#)?\s*:?\s*([A-Z0-9]{2,8})`),
			regexp.MustCompile(`(?i)(?:lic\s*#|plate\s*#)\s*:?\s*([A-Z0-9]{2,8})`),
			regexp.MustCompile(`\b([A-Z]{1,3}\s*\d{1,4}[A-Z]?|\d{1,3}\s*[A-Z]{1,3})\b`),
		},
	},
	{
		Label: "Violation Type",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:violation|offense|charge)\s*:?\s*([^\n]{10,60})`),
			regexp.MustCompile(`(?i)(?:code|section)\s*:?\s*([^\n]{5,50})`),
		},
	},
	{
		Label: "Fine Amount",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:fine|amount|total|penalty)\s*:?\s*\$?(\d+(?:\.\d{2})?)`),
			regexp.MustCompile(`\$(\d+(?:\.\d{2})?)`),
		},
	},
	{
		Label: "Date",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:date|issued|violation\s*date)\s*:?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
			regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`),
		},
	},
	{
		Label: "Time",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)time\s*:?\s*(\d{1,2}:\d{2}(?:\s*[ap]m)?)`),
			regexp.MustCompile(`\b(\d{1,2}:\d{2}(?:\s*[ap]m)?)\b`),
		},
	},
	{
		Label: "Location",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:location|address|street)\s*:?\s*([^\n]{10,80})`),
		},
	},
	{
		Label: "Officer Badge",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:officer|badge)\s*(?:number|#)?\s*:?\s*(\d+)`),
		},
	},
	{
		Label: "Citation Number",
		Patterns: []*regexp.Regexp{
			// Requires at least one digit so a following "Number" label is not taken as the value.
			regexp.MustCompile(`(?i)(?:citation|ticket)\s*(?:number|no\.?|#)?\s*:?\s*([A-Z0-9]*\d[A-Z0-9]*)`),
			regexp.MustCompile(`(?i)(?:citation|ticket|number|#)\s*:?\s*([A-Z0-9]+)`),
		},
	},
}

// Categories returns the labels of the pattern stage in evaluation order.
func Categories() []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = c.Label
	}
	return out
}
