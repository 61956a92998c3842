package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultLowConfidenceThreshold is the confidence below which a confirmation
// prompt carries an explicit warning.
const DefaultLowConfidenceThreshold = 0.8

// Confirmation is what the UI renders for a pending action.
type Confirmation struct {
	MessageID      string            `json:"message_id"`
	ActionType     ActionType        `json:"action_type"`
	Presentation   Presentation      `json:"presentation"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	Message        string            `json:"message"`
	Confidence     float64           `json:"confidence"`
	LowConfidence  bool              `json:"low_confidence"`
	Warning        string            `json:"warning,omitempty"`
	State          string            `json:"state"`
	ConfirmEnabled bool              `json:"confirm_enabled"`
}

// Confirmation builds the confirmation state for the intent. Actions are never
// executed from here; the caller must go through an explicit confirm step.
func (a *ActionIntent) Confirmation(threshold float64) Confirmation {
	c := Confirmation{
		ActionType:   a.ActionType,
		Presentation: a.ActionType.Presentation(),
		Parameters:   a.Parameters,
		Message:      a.ConfirmationMessage,
		Confidence:   a.Confidence,
	}
	if c.Message == "" {
		c.Message = fmt.Sprintf("%s with the parameters below?", c.Presentation.Label)
	}
	if a.Confidence < threshold {
		c.LowConfidence = true
		c.Warning = fmt.Sprintf("Low confidence (%d%%): review the parameters before confirming.",
			int(math.Round(a.Confidence*100)))
	}
	return c
}

// ClampUnit limits v to [0,1].
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Citation renders a source for display, e.g. "feedback (87%)".
func (s MessageSource) Citation() string {
	label := s.Type
	if s.Title != "" {
		label = s.Type + ": " + s.Title
	}
	if s.Similarity == nil {
		return label
	}
	return fmt.Sprintf("%s (%d%%)", label, int(math.Round(*s.Similarity*100)))
}

// NormalizeContent turns whatever an upstream call produced into display text.
// JSON objects with a recognisable text field are unwrapped; anything else is
// rendered as compact JSON.
func NormalizeContent(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return unwrapJSONText(t)
	case []byte:
		return unwrapJSONText(string(t))
	case fmt.Stringer:
		return t.String()
	case map[string]any:
		if s, ok := textField(t); ok {
			return s
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := NormalizeContent(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func unwrapJSONText(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return s
	}
	if text, ok := textField(obj); ok {
		return text
	}
	return s
}

func textField(obj map[string]any) (string, bool) {
	for _, k := range []string{"answer", "content", "text", "message"} {
		if v, ok := obj[k]; ok {
			return NormalizeContent(v), true
		}
	}
	return "", false
}

// FeedbackHit is one result of a similarity search over the feedback corpus.
type FeedbackHit struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// ThemeStat counts feedback mentioning a theme within a window.
type ThemeStat struct {
	Theme        string  `json:"theme"`
	Count        int     `json:"count"`
	AvgSentiment float64 `json:"avg_sentiment"`
	FeatureAsk   bool    `json:"feature_ask"`
}

// WindowStats aggregates the corpus over one analysis window.
type WindowStats struct {
	Start              time.Time      `json:"start"`
	End                time.Time      `json:"end"`
	Total              int            `json:"total"`
	AvgSentiment       float64        `json:"avg_sentiment"`
	Themes             []ThemeStat    `json:"themes"`
	ChurnMentions      int            `json:"churn_mentions"`
	CompetitorMentions map[string]int `json:"competitor_mentions"`
}

// CorpusSignals compares the current analysis window with the previous one.
type CorpusSignals struct {
	ProjectID string      `json:"project_id"`
	Current   WindowStats `json:"current"`
	Previous  WindowStats `json:"previous"`
}
