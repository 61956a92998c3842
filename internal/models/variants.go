package models

import (
	"fmt"
)

// Presentation describes how a tagged variant is rendered.
type Presentation struct {
	Tag   string `json:"tag"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// ActionType is the closed set of actions the router can propose.
type ActionType int

const (
	ActionUnknown ActionType = iota
	ActionGenerateReport
	ActionCreateTicket
	ActionSendDigest
	numActionTypes
)

var actionTypes = [...]Presentation{
	ActionUnknown:        {Tag: "unknown", Label: "Unknown action", Icon: "help-circle", Color: "gray"},
	ActionGenerateReport: {Tag: "generate_report", Label: "Generate report", Icon: "file-text", Color: "blue"},
	ActionCreateTicket:   {Tag: "create_ticket", Label: "Create ticket", Icon: "ticket", Color: "purple"},
	ActionSendDigest:     {Tag: "send_digest", Label: "Send digest", Icon: "mail", Color: "green"},
}

// Fails to compile when a variant is added without a table row.
var _ = [1]struct{}{}[len(actionTypes)-int(numActionTypes)]

// ActionTypes lists every executable action (excluding ActionUnknown).
func ActionTypes() []ActionType {
	out := make([]ActionType, 0, numActionTypes-1)
	for t := ActionUnknown + 1; t < numActionTypes; t++ {
		out = append(out, t)
	}
	return out
}

// ParseActionType resolves a wire tag. ok is false for unknown tags.
func ParseActionType(tag string) (ActionType, bool) {
	for t := ActionUnknown + 1; t < numActionTypes; t++ {
		if actionTypes[t].Tag == tag {
			return t, true
		}
	}
	return ActionUnknown, false
}

func (t ActionType) Presentation() Presentation {
	if t < 0 || t >= numActionTypes {
		return actionTypes[ActionUnknown]
	}
	return actionTypes[t]
}

func (t ActionType) String() string { return t.Presentation().Tag }

func (t ActionType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ActionType) UnmarshalText(b []byte) error {
	v, ok := ParseActionType(string(b))
	if !ok {
		return fmt.Errorf("unknown action type %q", string(b))
	}
	*t = v
	return nil
}

// SuggestionType is the closed set of proactive insight kinds.
type SuggestionType int

const (
	SuggestionSentimentDrop SuggestionType = iota
	SuggestionThemeSpike
	SuggestionChurnRisk
	SuggestionOpportunity
	SuggestionCompetitorMove
	numSuggestionTypes
)

var suggestionTypes = [...]Presentation{
	SuggestionSentimentDrop:  {Tag: "sentiment_drop", Label: "Sentiment drop", Icon: "trending-down", Color: "red"},
	SuggestionThemeSpike:     {Tag: "theme_spike", Label: "Theme spike", Icon: "zap", Color: "orange"},
	SuggestionChurnRisk:      {Tag: "churn_risk", Label: "Churn risk", Icon: "alert-triangle", Color: "red"},
	SuggestionOpportunity:    {Tag: "opportunity", Label: "Opportunity", Icon: "lightbulb", Color: "green"},
	SuggestionCompetitorMove: {Tag: "competitor_move", Label: "Competitor move", Icon: "target", Color: "purple"},
}

var _ = [1]struct{}{}[len(suggestionTypes)-int(numSuggestionTypes)]

// SuggestionTypes lists every suggestion variant.
func SuggestionTypes() []SuggestionType {
	out := make([]SuggestionType, 0, numSuggestionTypes)
	for t := SuggestionType(0); t < numSuggestionTypes; t++ {
		out = append(out, t)
	}
	return out
}

func ParseSuggestionType(tag string) (SuggestionType, bool) {
	for t := SuggestionType(0); t < numSuggestionTypes; t++ {
		if suggestionTypes[t].Tag == tag {
			return t, true
		}
	}
	return 0, false
}

func (t SuggestionType) Presentation() Presentation {
	if t < 0 || t >= numSuggestionTypes {
		return Presentation{Tag: "unknown"}
	}
	return suggestionTypes[t]
}

func (t SuggestionType) String() string { return t.Presentation().Tag }

func (t SuggestionType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *SuggestionType) UnmarshalText(b []byte) error {
	v, ok := ParseSuggestionType(string(b))
	if !ok {
		return fmt.Errorf("unknown suggestion type %q", string(b))
	}
	*t = v
	return nil
}

// Priority orders suggestions; lower values sort first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	numPriorities
)

var priorities = [...]Presentation{
	PriorityCritical: {Tag: "critical", Label: "Critical", Icon: "alert-octagon", Color: "red"},
	PriorityHigh:     {Tag: "high", Label: "High", Icon: "arrow-up", Color: "orange"},
	PriorityMedium:   {Tag: "medium", Label: "Medium", Icon: "minus", Color: "yellow"},
	PriorityLow:      {Tag: "low", Label: "Low", Icon: "arrow-down", Color: "gray"},
}

var _ = [1]struct{}{}[len(priorities)-int(numPriorities)]

func ParsePriority(tag string) (Priority, bool) {
	for p := Priority(0); p < numPriorities; p++ {
		if priorities[p].Tag == tag {
			return p, true
		}
	}
	return 0, false
}

func (p Priority) Presentation() Presentation {
	if p < 0 || p >= numPriorities {
		return priorities[PriorityLow]
	}
	return priorities[p]
}

// Rank is the default sort position (critical = 0).
func (p Priority) Rank() int { return int(p) }

func (p Priority) String() string { return p.Presentation().Tag }

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	v, ok := ParsePriority(string(b))
	if !ok {
		return fmt.Errorf("unknown priority %q", string(b))
	}
	*p = v
	return nil
}
