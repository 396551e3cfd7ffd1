package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lendcore/agentd/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// renderTemplate substitutes {{name}} placeholders with input values. A
// placeholder with no value is a configuration error: the template and the
// declared input variables disagree.
func renderTemplate(template string, values map[string]string) (string, error) {
	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", &domain.ConfigurationError{
			Message: fmt.Sprintf("prompt template references undeclared placeholder(s): %s", strings.Join(missing, ", ")),
		}
	}
	return rendered, nil
}

// validateInputs checks the invocation-time values against the agent's
// declared input variables.
func validateInputs(agent *domain.Agent, values map[string]string) error {
	for _, v := range agent.InputVars {
		if !v.Required {
			continue
		}
		if val, ok := values[v.Name]; !ok || val == "" {
			return &domain.ValidationError{
				Field:   v.Name,
				Message: "required input variable is missing",
			}
		}
	}
	return nil
}
