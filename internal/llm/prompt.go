package llm

import (
	"strings"

	"github.com/joseph-ayodele/kpi-extractor/constants"
)

// BuildExtractionPrompt renders the fixed instruction prompt from the field
// catalog. multi switches the wording for requests carrying several documents
// that must be combined into one record.
func BuildExtractionPrompt(cat *constants.Catalog, multi bool) string {
	var b strings.Builder
	if multi {
		b.WriteString("Extract the following KPIs from these multiple documents and combine the information:\n")
	} else {
		b.WriteString("Extract the following KPIs from the document:\n")
	}
	for _, f := range cat.Fields {
		b.WriteString("- ")
		b.WriteString(f.Name)
		if hint := fieldHint(f); hint != "" {
			b.WriteString(" (")
			b.WriteString(hint)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	if multi {
		b.WriteString("Analyze all documents together and return a single comprehensive JSON output combining information from all documents.\n")
	}
	b.WriteString("Return ONLY one JSON object whose keys are exactly the KPI names above. ")
	b.WriteString("Use \"" + constants.MissingValue + "\" for any KPI that is not present. ")
	b.WriteString("Do not wrap the object in an array and do not add commentary.")
	return b.String()
}

func fieldHint(f constants.Field) string {
	var parts []string
	if h := strings.TrimSpace(f.Hint); h != "" {
		parts = append(parts, h)
	}
	switch f.Type {
	case constants.FieldNumber:
		if len(parts) == 0 {
			parts = append(parts, "number")
		}
	case constants.FieldDate:
		parts = append(parts, "date as YYYY-MM-DD")
	}
	return strings.Join(parts, "; ")
}
