package suggest

import (
	"errors"
	"reflect"
	"testing"

	"github.com/soochol/chatflow/internal/chatflow"
)

func types(ss []Suggestion) []chatflow.NodeType {
	out := make([]chatflow.NodeType, len(ss))
	for i, s := range ss {
		out[i] = s.NodeType
	}
	return out
}

func TestSuggest_Rankings(t *testing.T) {
	tests := []struct {
		parent chatflow.NodeType
		want   []chatflow.NodeType
	}{
		{chatflow.NodeTypeStartTrigger, []chatflow.NodeType{chatflow.NodeTypeTextMessage, chatflow.NodeTypeQuickReplies, chatflow.NodeTypeCondition}},
		// condition and actionButtons tie at 8; base order keeps condition first
		{chatflow.NodeTypeTextMessage, []chatflow.NodeType{chatflow.NodeTypeQuickReplies, chatflow.NodeTypeWaitResponse, chatflow.NodeTypeCondition}},
		{chatflow.NodeTypeWaitResponse, []chatflow.NodeType{chatflow.NodeTypeCondition, chatflow.NodeTypeTextMessage, chatflow.NodeTypeQuickReplies}},
		{chatflow.NodeTypeHTTPRequest, []chatflow.NodeType{chatflow.NodeTypeCondition, chatflow.NodeTypeTextMessage, chatflow.NodeTypeQuickReplies}},
		{chatflow.NodeTypeQuickReplies, []chatflow.NodeType{chatflow.NodeTypeTextMessage, chatflow.NodeTypeCondition, chatflow.NodeTypeWaitResponse}},
	}
	for _, tt := range tests {
		t.Run(string(tt.parent), func(t *testing.T) {
			got, err := Suggest(tt.parent)
			if err != nil {
				t.Fatalf("suggest: %v", err)
			}
			if !reflect.DeepEqual(types(got), tt.want) {
				t.Errorf("got %v, want %v", types(got), tt.want)
			}
			for i, s := range got {
				if s.Rank != i+1 {
					t.Errorf("rank at %d: got %d", i, s.Rank)
				}
			}
		})
	}
}

func TestSuggest_Deterministic(t *testing.T) {
	for _, nt := range chatflow.AllNodeTypes {
		a, err := Suggest(nt)
		if err != nil {
			t.Fatalf("%s: %v", nt, err)
		}
		b, _ := Suggest(nt)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: results differ: %v vs %v", nt, a, b)
		}
		if len(a) != MaxSuggestions {
			t.Errorf("%s: got %d suggestions", nt, len(a))
		}
		for _, s := range a {
			if s.NodeType == chatflow.NodeTypeStartTrigger {
				t.Errorf("%s: suggested a second entry point", nt)
			}
		}
	}
}

func TestSuggest_NeverRepeatsParentFirst(t *testing.T) {
	for _, nt := range []chatflow.NodeType{chatflow.NodeTypeTextMessage, chatflow.NodeTypeCondition, chatflow.NodeTypeDelay} {
		got, _ := Suggest(nt)
		if got[0].NodeType == nt {
			t.Errorf("%s: top suggestion repeats the parent", nt)
		}
	}
}

func TestSuggest_UnknownParent(t *testing.T) {
	if _, err := Suggest("carousel"); !errors.Is(err, chatflow.ErrUnknownNodeType) {
		t.Fatalf("got %v, want ErrUnknownNodeType", err)
	}
}

func TestBase_CoversEveryKindButStart(t *testing.T) {
	seen := map[chatflow.NodeType]bool{}
	for _, b := range base {
		seen[b.nodeType] = true
	}
	for _, nt := range chatflow.AllNodeTypes {
		if nt == chatflow.NodeTypeStartTrigger {
			continue
		}
		if !seen[nt] {
			t.Errorf("%s missing from base priorities", nt)
		}
	}
	for parent := range adjustments {
		if !parent.Valid() {
			t.Errorf("adjustment keyed by unknown type %s", parent)
		}
	}
}
