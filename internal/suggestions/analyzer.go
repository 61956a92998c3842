package suggestions

import (
	"fmt"
	"math"
	"sort"

	"github.com/sairevanth-zz/signalsloop/internal/models"
)

const (
	minSample            = 5
	sentimentDropMin     = 0.15
	themeSpikeMinCount   = 5
	themeSpikeMinGrowth  = 2.0
	churnMinMentions     = 3
	opportunityMinCount  = 5
	competitorMinMention = 3
)

// Analyzer turns window statistics into zero or more candidate suggestions.
type Analyzer func(sig models.CorpusSignals) []models.ProactiveSuggestion

// DefaultAnalyzers covers every suggestion type.
var DefaultAnalyzers = []Analyzer{
	SentimentDrop,
	ThemeSpikes,
	ChurnRisk,
	Opportunities,
	CompetitorMoves,
}

// Analyze runs analyzers and orders candidates critical first.
func Analyze(sig models.CorpusSignals, analyzers []Analyzer) []models.ProactiveSuggestion {
	var out []models.ProactiveSuggestion
	for _, a := range analyzers {
		out = append(out, a(sig)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}

func SentimentDrop(sig models.CorpusSignals) []models.ProactiveSuggestion {
	cur, prev := sig.Current, sig.Previous
	if cur.Total < minSample || prev.Total < minSample {
		return nil
	}
	drop := prev.AvgSentiment - cur.AvgSentiment
	if drop < sentimentDropMin {
		return nil
	}
	priority := models.PriorityMedium
	switch {
	case drop >= 0.3:
		priority = models.PriorityCritical
	case drop >= 0.2:
		priority = models.PriorityHigh
	}
	return []models.ProactiveSuggestion{{
		SuggestionType:  models.SuggestionSentimentDrop,
		Priority:        priority,
		Subject:         "overall",
		Title:           "Sentiment is dropping",
		Description:     fmt.Sprintf("Average sentiment fell from %.2f to %.2f across %d recent items.", prev.AvgSentiment, cur.AvgSentiment, cur.Total),
		QuerySuggestion: "What is driving the recent drop in customer sentiment?",
		ContextData: map[string]any{
			"previous_sentiment": round2(prev.AvgSentiment),
			"current_sentiment":  round2(cur.AvgSentiment),
			"drop":               round2(drop),
			"feedback_count":     cur.Total,
		},
	}}
}

func ThemeSpikes(sig models.CorpusSignals) []models.ProactiveSuggestion {
	prev := themeCounts(sig.Previous)
	var out []models.ProactiveSuggestion
	for _, th := range sig.Current.Themes {
		if th.Count < themeSpikeMinCount {
			continue
		}
		before := prev[th.Theme]
		growth := float64(th.Count) / math.Max(float64(before), 1)
		if growth < themeSpikeMinGrowth {
			continue
		}
		priority := models.PriorityMedium
		if growth >= 3 {
			priority = models.PriorityHigh
		}
		out = append(out, models.ProactiveSuggestion{
			SuggestionType:  models.SuggestionThemeSpike,
			Priority:        priority,
			Subject:         th.Theme,
			Title:           fmt.Sprintf("Spike in %q feedback", th.Theme),
			Description:     fmt.Sprintf("%d mentions this period versus %d in the previous one.", th.Count, before),
			QuerySuggestion: fmt.Sprintf("Why are more users talking about %s lately?", th.Theme),
			ContextData: map[string]any{
				"theme":             th.Theme,
				"current_mentions":  th.Count,
				"previous_mentions": before,
				"growth":            round2(growth),
			},
		})
	}
	return out
}

func ChurnRisk(sig models.CorpusSignals) []models.ProactiveSuggestion {
	n := sig.Current.ChurnMentions
	if n < churnMinMentions {
		return nil
	}
	priority := models.PriorityHigh
	if n >= 10 {
		priority = models.PriorityCritical
	}
	return []models.ProactiveSuggestion{{
		SuggestionType:  models.SuggestionChurnRisk,
		Priority:        priority,
		Subject:         "churn",
		Title:           "Customers are signalling churn",
		Description:     fmt.Sprintf("%d feedback items mention cancelling or switching (previously %d).", n, sig.Previous.ChurnMentions),
		QuerySuggestion: "Which customers are at risk of churning and why?",
		ContextData: map[string]any{
			"churn_mentions":          n,
			"previous_churn_mentions": sig.Previous.ChurnMentions,
		},
	}}
}

func Opportunities(sig models.CorpusSignals) []models.ProactiveSuggestion {
	var out []models.ProactiveSuggestion
	for _, th := range sig.Current.Themes {
		if !th.FeatureAsk || th.Count < opportunityMinCount || th.AvgSentiment <= 0 {
			continue
		}
		priority := models.PriorityLow
		if th.Count >= 10 {
			priority = models.PriorityMedium
		}
		out = append(out, models.ProactiveSuggestion{
			SuggestionType:  models.SuggestionOpportunity,
			Priority:        priority,
			Subject:         th.Theme,
			Title:           fmt.Sprintf("Users want more %s", th.Theme),
			Description:     fmt.Sprintf("%d positive feature requests mention %s.", th.Count, th.Theme),
			QuerySuggestion: fmt.Sprintf("What exactly are users asking for around %s?", th.Theme),
			ContextData: map[string]any{
				"theme":         th.Theme,
				"requests":      th.Count,
				"avg_sentiment": round2(th.AvgSentiment),
			},
		})
	}
	return out
}

func CompetitorMoves(sig models.CorpusSignals) []models.ProactiveSuggestion {
	names := make([]string, 0, len(sig.Current.CompetitorMentions))
	for name := range sig.Current.CompetitorMentions {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []models.ProactiveSuggestion
	for _, name := range names {
		cur := sig.Current.CompetitorMentions[name]
		before := sig.Previous.CompetitorMentions[name]
		if cur < competitorMinMention || cur < 2*before {
			continue
		}
		priority := models.PriorityMedium
		if cur >= 10 {
			priority = models.PriorityHigh
		}
		out = append(out, models.ProactiveSuggestion{
			SuggestionType:  models.SuggestionCompetitorMove,
			Priority:        priority,
			Subject:         name,
			Title:           fmt.Sprintf("%s is coming up more often", name),
			Description:     fmt.Sprintf("%s was mentioned %d times this period versus %d before.", name, cur, before),
			QuerySuggestion: fmt.Sprintf("What are users saying about %s compared to us?", name),
			ContextData: map[string]any{
				"competitor":        name,
				"current_mentions":  cur,
				"previous_mentions": before,
			},
		})
	}
	return out
}

func themeCounts(ws models.WindowStats) map[string]int {
	out := make(map[string]int, len(ws.Themes))
	for _, th := range ws.Themes {
		out[th.Theme] = th.Count
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
