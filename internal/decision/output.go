package decision

import (
	"encoding/json"
	"strings"
)

// parseOutputValue resolves a decision-table output cell to a literal Go
// value. Cells are authored as small literals ("approved", 42, true) rather
// than boolean tests, so a JSON-literal parse covers numbers/bools/null/
// quoted strings directly; anything else (a bare word) is taken verbatim as
// a string, matching how input cells treat bare identifiers (§4.4).
func parseOutputValue(expression string) interface{} {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil
	}

	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	return trimmed
}
