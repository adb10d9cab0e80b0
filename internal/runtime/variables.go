package runtime

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
)

// Built-in variables maintained by the executor.
const (
	VarLastMessage = "last_message"
	VarContactID   = "contact_id"
)

// placeholderPattern matches {{name}} placeholders.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+(?:\.\w+)*)\s*\}\}`)

// Interpolate replaces {{name}} placeholders with values from vars. Unknown
// names render empty.
func Interpolate(template string, vars map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
}

// Evaluate runs an expr-lang expression with the conversation variables in
// scope and renders the result as a string.
func Evaluate(expression string, vars map[string]string) (string, error) {
	env := make(map[string]any, len(vars))
	for k, v := range vars {
		env[k] = v
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return "", fmt.Errorf("compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", result), nil
}
