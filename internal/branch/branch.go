// Package branch decides which output slot a multi-output node takes for a
// given inbound message and variable bindings.
package branch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/soochol/chatflow/internal/chatflow"
)

// ErrUnresolvable is returned when a condition node has no default rule.
var ErrUnresolvable = errors.New("condition has no default rule")

// Result names the winning output slot.
type Result struct {
	Index        int
	Handle       string
	TargetNodeID string
}

// Ends reports whether the winning slot records no target.
func (r Result) Ends() bool { return r.TargetNodeID == "" }

// EvaluateCondition tests rules in declaration order and returns the first
// match. A rule with a Variable tests that binding; otherwise it tests the
// message text. contains and starts_with ignore case, equals does not, and
// default always matches.
func EvaluateCondition(rules []chatflow.ConditionRule, vars map[string]string, message string) (Result, error) {
	hasDefault := false
	for _, r := range rules {
		if r.MatchType == chatflow.MatchDefault {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		return Result{}, ErrUnresolvable
	}

	for i, r := range rules {
		subject := message
		if r.Variable != "" {
			subject = vars[r.Variable]
		}
		ok, err := Matches(r.MatchType, subject, r.Value)
		if err != nil {
			return Result{}, fmt.Errorf("rule %d: %w", i, err)
		}
		if ok {
			return Result{Index: i, Handle: chatflow.ConditionHandle(i), TargetNodeID: r.TargetNodeID}, nil
		}
	}
	// unreachable: the default rule always matches
	return Result{}, ErrUnresolvable
}

// Matches applies a single predicate.
func Matches(mt chatflow.MatchType, subject, value string) (bool, error) {
	switch mt {
	case chatflow.MatchDefault:
		return true, nil
	case chatflow.MatchEquals:
		return subject == value, nil
	case chatflow.MatchContains:
		return strings.Contains(strings.ToLower(subject), strings.ToLower(value)), nil
	case chatflow.MatchStartsWith:
		return strings.HasPrefix(strings.ToLower(subject), strings.ToLower(value)), nil
	}
	return false, fmt.Errorf("unknown match type %q", mt)
}

// MatchButton resolves a reply against a button set. Only exact label
// matches or structured button callbacks count.
func MatchButton(set *chatflow.ButtonSet, text, buttonID string) (Result, bool) {
	h, ok := set.Match(text, buttonID)
	if !ok {
		return Result{}, false
	}
	i, _ := strconv.Atoi(strings.TrimPrefix(h, "button-"))
	return Result{Index: i, Handle: h, TargetNodeID: set.Target(h)}, true
}
