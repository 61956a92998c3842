package suggestions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sairevanth-zz/signalsloop/internal/models"
)

func window(total int, sentiment float64) models.WindowStats {
	return models.WindowStats{Total: total, AvgSentiment: sentiment, CompetitorMentions: map[string]int{}}
}

func TestSentimentDrop(t *testing.T) {
	tests := []struct {
		name     string
		prev     models.WindowStats
		cur      models.WindowStats
		want     bool
		priority models.Priority
	}{
		{"small drop", window(10, 0.5), window(10, 0.4), false, 0},
		{"medium drop", window(10, 0.5), window(10, 0.33), true, models.PriorityMedium},
		{"high drop", window(10, 0.5), window(10, 0.25), true, models.PriorityHigh},
		{"critical drop", window(10, 0.5), window(10, 0.1), true, models.PriorityCritical},
		{"too few current", window(10, 0.5), window(4, -0.5), false, 0},
		{"too few previous", window(2, 0.9), window(10, 0.1), false, 0},
		{"improvement", window(10, 0.1), window(10, 0.6), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SentimentDrop(models.CorpusSignals{Current: tt.cur, Previous: tt.prev})
			if !tt.want {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, models.SuggestionSentimentDrop, got[0].SuggestionType)
			assert.Equal(t, tt.priority, got[0].Priority)
			assert.Equal(t, "overall", got[0].Subject)
			assert.NotEmpty(t, got[0].QuerySuggestion)
		})
	}
}

func TestThemeSpikes(t *testing.T) {
	sig := models.CorpusSignals{
		Current: models.WindowStats{Themes: []models.ThemeStat{
			{Theme: "billing", Count: 9},
			{Theme: "search", Count: 8},
			{Theme: "exports", Count: 4},
			{Theme: "mobile", Count: 6},
		}},
		Previous: models.WindowStats{Themes: []models.ThemeStat{
			{Theme: "billing", Count: 3},
			{Theme: "mobile", Count: 5},
		}},
	}

	got := ThemeSpikes(sig)
	require.Len(t, got, 2)

	byTheme := map[string]models.ProactiveSuggestion{}
	for _, s := range got {
		byTheme[s.Subject] = s
	}
	assert.Equal(t, models.PriorityHigh, byTheme["billing"].Priority)
	assert.Equal(t, 3.0, byTheme["billing"].ContextData["growth"])
	assert.Equal(t, models.PriorityHigh, byTheme["search"].Priority, "new theme counts against a baseline of one")
	assert.NotContains(t, byTheme, "exports")
	assert.NotContains(t, byTheme, "mobile")
}

func TestChurnRisk(t *testing.T) {
	assert.Empty(t, ChurnRisk(models.CorpusSignals{Current: models.WindowStats{ChurnMentions: 2}}))

	got := ChurnRisk(models.CorpusSignals{Current: models.WindowStats{ChurnMentions: 4}})
	require.Len(t, got, 1)
	assert.Equal(t, models.PriorityHigh, got[0].Priority)

	got = ChurnRisk(models.CorpusSignals{Current: models.WindowStats{ChurnMentions: 12}})
	require.Len(t, got, 1)
	assert.Equal(t, models.PriorityCritical, got[0].Priority)
}

func TestOpportunities(t *testing.T) {
	sig := models.CorpusSignals{Current: models.WindowStats{Themes: []models.ThemeStat{
		{Theme: "dark mode", Count: 12, AvgSentiment: 0.4, FeatureAsk: true},
		{Theme: "api", Count: 6, AvgSentiment: 0.2, FeatureAsk: true},
		{Theme: "pricing", Count: 20, AvgSentiment: -0.3, FeatureAsk: true},
		{Theme: "login", Count: 20, AvgSentiment: 0.5},
	}}}

	got := Opportunities(sig)
	require.Len(t, got, 2)
	assert.Equal(t, "dark mode", got[0].Subject)
	assert.Equal(t, models.PriorityMedium, got[0].Priority)
	assert.Equal(t, "api", got[1].Subject)
	assert.Equal(t, models.PriorityLow, got[1].Priority)
}

func TestCompetitorMoves(t *testing.T) {
	sig := models.CorpusSignals{
		Current:  models.WindowStats{CompetitorMentions: map[string]int{"Acme": 4, "Globex": 5, "Initech": 11}},
		Previous: models.WindowStats{CompetitorMentions: map[string]int{"Globex": 4, "Initech": 2}},
	}

	got := CompetitorMoves(sig)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme", got[0].Subject)
	assert.Equal(t, models.PriorityMedium, got[0].Priority)
	assert.Equal(t, "Initech", got[1].Subject)
	assert.Equal(t, models.PriorityHigh, got[1].Priority)
}

func TestAnalyzeOrdersByPriority(t *testing.T) {
	sig := models.CorpusSignals{
		Current:  models.WindowStats{Total: 10, AvgSentiment: 0.1, ChurnMentions: 3, CompetitorMentions: map[string]int{"Acme": 3}},
		Previous: models.WindowStats{Total: 10, AvgSentiment: 0.5, CompetitorMentions: map[string]int{}},
	}

	got := Analyze(sig, DefaultAnalyzers)
	require.Len(t, got, 3)
	assert.Equal(t, models.SuggestionSentimentDrop, got[0].SuggestionType)
	assert.Equal(t, models.SuggestionChurnRisk, got[1].SuggestionType)
	assert.Equal(t, models.SuggestionCompetitorMove, got[2].SuggestionType)
}

func TestMateriallyChanged(t *testing.T) {
	base := map[string]any{"theme": "billing", "current_mentions": 8, "growth": 2.0}
	tests := []struct {
		name string
		next map[string]any
		want bool
	}{
		{"identical", map[string]any{"theme": "billing", "current_mentions": 8, "growth": 2.0}, false},
		{"decoded json numbers", map[string]any{"theme": "billing", "current_mentions": 8.0, "growth": 2.0}, false},
		{"small move", map[string]any{"theme": "billing", "current_mentions": 9, "growth": 2.2}, false},
		{"quarter move", map[string]any{"theme": "billing", "current_mentions": 10, "growth": 2.0}, true},
		{"drop", map[string]any{"theme": "billing", "current_mentions": 5, "growth": 2.0}, true},
		{"string differs", map[string]any{"theme": "invoices", "current_mentions": 8, "growth": 2.0}, true},
		{"key missing", map[string]any{"theme": "billing", "current_mentions": 8}, true},
		{"type differs", map[string]any{"theme": "billing", "current_mentions": "8", "growth": 2.0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MateriallyChanged(base, tt.next))
		})
	}

	assert.False(t, MateriallyChanged(map[string]any{"n": 0}, map[string]any{"n": 0}))
	assert.True(t, MateriallyChanged(map[string]any{"n": 0}, map[string]any{"n": 1}))
	assert.False(t, MateriallyChanged(nil, map[string]any{}))
}
