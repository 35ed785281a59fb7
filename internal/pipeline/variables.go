package pipeline

import (
	"regexp"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// ResolveVariables substitutes {{name}} placeholders, with or without
// surrounding whitespace inside the braces, by their literal values.
// Placeholders without a matching variable are left as they are.
func ResolveVariables(goal string, variables []domain.Variable) string {
	if len(variables) == 0 {
		return goal
	}
	resolved := goal
	for _, v := range variables {
		pattern := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(v.Name) + `\s*\}\}`)
		resolved = pattern.ReplaceAllLiteralString(resolved, v.Value)
	}
	return resolved
}
