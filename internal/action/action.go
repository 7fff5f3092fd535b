// Package action defines the structured actions proposed by the model and
// the parser for the textual call format the model emits, e.g.
//
//	do(action="Tap", element=[500, 320])
//	finish(message="Done")
package action

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind distinguishes device actions from the completion signal.
type Kind string

const (
	KindDo     Kind = "do"
	KindFinish Kind = "finish"
)

// Action names understood by the executor.
const (
	NameLaunch    = "Launch"
	NameTap       = "Tap"
	NameType      = "Type"
	NameTypeName  = "Type_Name"
	NameSwipe     = "Swipe"
	NameBack      = "Back"
	NameHome      = "Home"
	NameDoubleTap = "Double Tap"
	NameLongPress = "Long Press"
	NameWait      = "Wait"
	NameTakeover  = "Take_over"
	NameNote      = "Note"
	NameCallAPI   = "Call_API"
	NameInteract  = "Interact"
)

// Action is one parsed model proposal. Params hold the raw argument strings
// keyed by argument name ("element", "app", "text", ...).
type Action struct {
	Kind   Kind              `json:"kind"`
	Name   string            `json:"name,omitempty"`
	Params map[string]string `json:"params,omitempty"`
	Raw    string            `json:"raw,omitempty"`
}

// Do builds a device action.
func Do(name string, params map[string]string) Action {
	if params == nil {
		params = map[string]string{}
	}
	return Action{Kind: KindDo, Name: name, Params: params}
}

// Finish builds a completion action.
func Finish(message string) Action {
	return Action{Kind: KindFinish, Params: map[string]string{"message": message}}
}

// IsFinish reports whether the action signals task completion.
func (a Action) IsFinish() bool { return a.Kind == KindFinish }

// Param returns the named argument or "".
func (a Action) Param(key string) string {
	if a.Params == nil {
		return ""
	}
	return a.Params[key]
}

// Message returns the "message" argument. For finish it is the final
// answer, for Take_over the manual instruction, and for other do-actions
// a confirmation prompt attached by the model.
func (a Action) Message() string { return a.Param("message") }

// RequiresTakeover reports whether the action hands control to a human.
func (a Action) RequiresTakeover() bool {
	return a.Kind == KindDo && a.Name == NameTakeover
}

// Label is a short human-readable name used in logs and transcripts.
func (a Action) Label() string {
	if a.IsFinish() {
		return "finish"
	}
	return a.Name
}

// String renders the action back into call syntax with sorted arguments.
func (a Action) String() string {
	var sb strings.Builder
	if a.IsFinish() {
		sb.WriteString("finish(message=")
		sb.WriteString(strconv.Quote(a.Message()))
		sb.WriteString(")")
		return sb.String()
	}

	sb.WriteString("do(action=")
	sb.WriteString(strconv.Quote(a.Name))
	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := a.Params[k]
		sb.WriteString(", ")
		sb.WriteString(k)
		sb.WriteString("=")
		if strings.HasPrefix(v, "[") {
			sb.WriteString(v)
		} else {
			sb.WriteString(strconv.Quote(v))
		}
	}
	sb.WriteString(")")
	return sb.String()
}

// Point parses a coordinate argument such as "[500, 320]". Coordinates are
// relative, in the range 0..1000 on both axes.
func (a Action) Point(key string) ([2]float64, error) {
	raw := a.Param(key)
	if raw == "" {
		return [2]float64{}, fmt.Errorf("missing %s coordinates", key)
	}
	return ParsePoint(raw)
}

// ParsePoint parses "[x, y]" or "x, y" into relative coordinates.
func ParsePoint(s string) ([2]float64, error) {
	var p [2]float64
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return p, fmt.Errorf("invalid coordinates %q", s)
	}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return p, fmt.Errorf("invalid coordinate %q: %w", part, err)
		}
		if v < 0 || v > 1000 {
			return p, fmt.Errorf("coordinate %v out of range 0..1000", v)
		}
		p[i] = v
	}
	return p, nil
}
