package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/metrics"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

const (
	defaultSourceLimit = 8
	historyWindow      = 12
	previewRunes       = 160
)

// Reply is the router's output for one question.
type Reply struct {
	Content   string
	QueryType models.QueryType
	Sources   []models.MessageSource
	Intent    *models.ActionIntent
	Metadata  *models.MessageMetadata
}

// Classification is the parsed NLU verdict for a question.
type Classification struct {
	QueryType models.QueryType
	Intent    *models.ActionIntent
}

type Router struct {
	llm         core.LLMProvider
	embedder    core.EmbeddingProvider
	corpus      core.FeedbackCorpus
	sourceLimit int
	threshold   float64
	now         func() time.Time
}

func NewRouter(llm core.LLMProvider, embedder core.EmbeddingProvider, corpus core.FeedbackCorpus, sourceLimit int) *Router {
	if sourceLimit <= 0 {
		sourceLimit = defaultSourceLimit
	}
	return &Router{
		llm:         llm,
		embedder:    embedder,
		corpus:      corpus,
		sourceLimit: sourceLimit,
		threshold:   models.DefaultLowConfidenceThreshold,
		now:         time.Now,
	}
}

// WithLowConfidenceThreshold sets the confidence below which the confirmation
// prompt carries a warning. Use the same value as the ActionService.
func (r *Router) WithLowConfidenceThreshold(threshold float64) *Router {
	if threshold > 0 {
		r.threshold = threshold
	}
	return r
}

// Route classifies the question and returns either a sourced answer or an
// action intent awaiting confirmation. Source retrieval runs alongside
// classification and never fails the route.
func (r *Router) Route(ctx context.Context, projectID, question string, history []models.Message) (*Reply, error) {
	start := r.now()

	var (
		cls     *Classification
		sources []models.MessageSource
		hits    []models.FeedbackHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := r.Classify(gctx, question, history)
		cls = c
		return err
	})
	g.Go(func() error {
		hits, sources = r.retrieve(gctx, projectID, question)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if cls.QueryType == models.QueryActionable {
		conf := cls.Intent.Confirmation(r.threshold)
		content := conf.Message
		if conf.Warning != "" {
			content += "\n\n" + conf.Warning
		}
		return &Reply{
			Content:   content,
			QueryType: models.QueryActionable,
			Intent:    cls.Intent,
			Metadata:  r.metadata(models.QueryActionable, start),
		}, nil
	}

	return r.answer(ctx, question, history, hits, sources, start)
}

// Answer produces an informational answer without classification. The
// Scheduled Query Engine uses it for recurring questions.
func (r *Router) Answer(ctx context.Context, projectID, question string) (*Reply, error) {
	start := r.now()
	hits, sources := r.retrieve(ctx, projectID, question)
	return r.answer(ctx, question, nil, hits, sources, start)
}

func (r *Router) answer(ctx context.Context, question string, history []models.Message, hits []models.FeedbackHit, sources []models.MessageSource, start time.Time) (*Reply, error) {
	system := "You are SignalsLoop's feedback analyst. Answer the product manager's question using the numbered feedback excerpts. " +
		"Cite excerpts by number when you rely on them. If the excerpts do not cover the question, say so plainly."

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(renderHistory(history))
		sb.WriteString("\n")
	}
	if len(hits) > 0 {
		sb.WriteString("Feedback excerpts:\n")
		for i, h := range hits {
			fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, h.Type, strings.TrimSpace(h.Content))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)

	out, err := r.llm.Generate(ctx, system, sb.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.RoutingError{Stage: "answer", Err: err}
	}
	content := strings.TrimSpace(models.NormalizeContent(out))
	if content == "" {
		return nil, &core.RoutingError{Stage: "answer", Err: errors.New("empty answer")}
	}

	md := r.metadata(models.QueryInformational, start)
	metrics.AnswerLatency.Observe(float64(md.LatencyMs) / 1000)

	return &Reply{
		Content:   content,
		QueryType: models.QueryInformational,
		Sources:   sources,
		Metadata:  md,
	}, nil
}

type verdict struct {
	QueryType           string         `json:"query_type"`
	ActionType          string         `json:"action_type"`
	Parameters          map[string]any `json:"parameters"`
	Confidence          float64        `json:"confidence"`
	ConfirmationMessage string         `json:"confirmation_message"`
}

// Classify asks the LLM for a JSON verdict. Verdicts that cannot be parsed or
// that name an unknown action degrade to informational.
func (r *Router) Classify(ctx context.Context, question string, history []models.Message) (*Classification, error) {
	var tags []string
	for _, t := range models.ActionTypes() {
		tags = append(tags, t.String())
	}

	system := "You route questions for a feedback analytics assistant. Reply with one JSON object only:\n" +
		`{"query_type":"informational|actionable","action_type":"` + strings.Join(tags, "|") + `",` +
		`"parameters":{"key":"value"},"confidence":0.0,"confirmation_message":"..."}` + "\n" +
		"Use actionable only when the user asks the assistant to do something (create, generate, send). " +
		"confidence is your certainty in [0,1] about the action and its parameters."

	user := question
	if len(history) > 0 {
		user = "Conversation so far:\n" + renderHistory(history) + "\nNew question: " + question
	}

	raw, err := r.llm.Generate(ctx, system, user)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.RoutingError{Stage: "classification", Err: err}
	}

	informational := &Classification{QueryType: models.QueryInformational}

	var v verdict
	if err := json.Unmarshal([]byte(extractJSON(raw)), &v); err != nil {
		log.Debug().Err(err).Msg("unparseable routing verdict, treating as informational")
		return informational, nil
	}
	if models.QueryType(strings.ToLower(v.QueryType)) != models.QueryActionable {
		return informational, nil
	}
	at, ok := models.ParseActionType(v.ActionType)
	if !ok {
		log.Debug().Str("action_type", v.ActionType).Msg("unknown action in verdict, treating as informational")
		return informational, nil
	}

	params := make(map[string]string, len(v.Parameters))
	for k, val := range v.Parameters {
		if s := models.NormalizeContent(val); s != "" {
			params[k] = s
		}
	}

	return &Classification{
		QueryType: models.QueryActionable,
		Intent: &models.ActionIntent{
			RequiresAction:      true,
			ActionType:          at,
			Parameters:          params,
			Confidence:          models.ClampUnit(v.Confidence),
			ConfirmationMessage: strings.TrimSpace(v.ConfirmationMessage),
		},
	}, nil
}

// retrieve embeds the question and searches the corpus. Failures only drop citations.
func (r *Router) retrieve(ctx context.Context, projectID, question string) ([]models.FeedbackHit, []models.MessageSource) {
	if r.embedder == nil || r.corpus == nil {
		return nil, nil
	}
	vecs, err := r.embedder.EmbedTexts(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		log.Warn().Err(err).Str("project_id", projectID).Msg("question embedding failed, answering without sources")
		return nil, nil
	}
	hits, err := r.corpus.SearchFeedback(ctx, projectID, vecs[0], r.sourceLimit)
	if err != nil {
		log.Warn().Err(err).Str("project_id", projectID).Msg("feedback search failed, answering without sources")
		return nil, nil
	}
	return hits, rankSources(hits)
}

func rankSources(hits []models.FeedbackHit) []models.MessageSource {
	out := make([]models.MessageSource, 0, len(hits))
	for _, h := range hits {
		sim := models.ClampUnit(h.Similarity)
		out = append(out, models.MessageSource{
			ID:         h.ID,
			Type:       h.Type,
			Similarity: &sim,
			Title:      h.Title,
			Preview:    truncateRunes(strings.TrimSpace(h.Content), previewRunes),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Similarity > *out[j].Similarity
	})
	return out
}

func (r *Router) metadata(qt models.QueryType, start time.Time) *models.MessageMetadata {
	return &models.MessageMetadata{
		Model:     r.llm.ModelName(),
		LatencyMs: r.now().Sub(start).Milliseconds(),
		QueryType: qt,
	}
}

func renderHistory(history []models.Message) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}

// extractJSON pulls the outermost object out of a reply that may be fenced or chatty.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
