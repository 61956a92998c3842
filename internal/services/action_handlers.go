package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

// ActionRequest carries what a handler needs to run one confirmed action.
type ActionRequest struct {
	ProjectID  string
	MessageID  string
	Parameters map[string]string
}

// ActionOutput is the handler's contribution to the ActionResult.
type ActionOutput struct {
	ResourceURL string
	Data        string
	// Cleanup, when set, removes what the handler created if the result
	// cannot be recorded.
	Cleanup func(ctx context.Context) error
}

// ActionHandler performs the side effect for one action type.
type ActionHandler interface {
	Handle(ctx context.Context, req ActionRequest) (*ActionOutput, error)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, req ActionRequest) (*ActionOutput, error)

func (f ActionHandlerFunc) Handle(ctx context.Context, req ActionRequest) (*ActionOutput, error) {
	return f(ctx, req)
}

// ArtifactSource is implemented by handlers whose result can be downloaded.
type ArtifactSource interface {
	Artifact(ctx context.Context, projectID, messageID string) (data []byte, contentType string, err error)
}

// ReportAction writes an LLM report over the relevant feedback and stores it.
type ReportAction struct {
	LLM      core.LLMProvider
	Embedder core.EmbeddingProvider
	Corpus   core.FeedbackCorpus
	Storage  core.ObjectClient
	Bucket   string
	Limit    int
}

func (a *ReportAction) Handle(ctx context.Context, req ActionRequest) (*ActionOutput, error) {
	topic := firstNonEmpty(req.Parameters["topic"], req.Parameters["subject"], "overall product feedback")

	var excerpts strings.Builder
	vecs, err := a.Embedder.EmbedTexts(ctx, []string{topic})
	if err != nil {
		return nil, fmt.Errorf("embed topic: %w", err)
	}
	if len(vecs) > 0 {
		limit := a.Limit
		if limit <= 0 {
			limit = 25
		}
		hits, err := a.Corpus.SearchFeedback(ctx, req.ProjectID, vecs[0], limit)
		if err != nil {
			return nil, fmt.Errorf("search feedback: %w", err)
		}
		for i, h := range hits {
			fmt.Fprintf(&excerpts, "[%d] (%s) %s\n", i+1, h.Type, strings.TrimSpace(h.Content))
		}
	}

	system := "Write a concise markdown report for a product team. Sections: Summary, Key themes, Notable quotes, Recommendations."
	user := fmt.Sprintf("Report topic: %s\n", topic)
	if tr := req.Parameters["time_range"]; tr != "" {
		user += "Time range: " + tr + "\n"
	}
	user += "\nFeedback:\n" + excerpts.String()

	report, err := a.LLM.Generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	report = models.NormalizeContent(report)

	key := reportKey(req.ProjectID, req.MessageID)
	url, err := a.Storage.UploadFile(ctx, a.Bucket, key, strings.NewReader(report), reportContentType)
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	return &ActionOutput{
		ResourceURL: url,
		Data:        report,
		Cleanup: func(ctx context.Context) error {
			return a.Storage.DeleteFile(ctx, a.Bucket, key)
		},
	}, nil
}

// Artifact reads back the report stored for messageID.
func (a *ReportAction) Artifact(ctx context.Context, projectID, messageID string) ([]byte, string, error) {
	data, err := a.Storage.GetFile(ctx, a.Bucket, reportKey(projectID, messageID))
	if err != nil {
		return nil, "", fmt.Errorf("read report: %w", err)
	}
	return data, reportContentType, nil
}

const reportContentType = "text/markdown; charset=utf-8"

// reportKey is one object per intent; an intent runs at most once.
func reportKey(projectID, messageID string) string {
	return path.Join("projects", projectID, "reports", messageID+".md")
}

// TicketAction files a ticket in the project's backlog.
type TicketAction struct {
	DB      core.DbClient
	BaseURL string
	Now     func() time.Time
}

func (a *TicketAction) Handle(ctx context.Context, req ActionRequest) (*ActionOutput, error) {
	title := strings.TrimSpace(firstNonEmpty(req.Parameters["title"], req.Parameters["summary"]))
	if title == "" {
		return nil, errors.New("ticket title is required")
	}
	priority := strings.ToLower(firstNonEmpty(req.Parameters["priority"], models.PriorityMedium.String()))
	if _, ok := models.ParsePriority(priority); !ok {
		return nil, fmt.Errorf("unknown ticket priority %q", priority)
	}

	t := &models.Ticket{
		ID:          uuid.NewString(),
		ProjectID:   req.ProjectID,
		Title:       title,
		Description: req.Parameters["description"],
		Priority:    priority,
		CreatedAt:   a.Now().UTC(),
	}
	if err := a.DB.CreateTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return &ActionOutput{
		ResourceURL: a.BaseURL + "/tickets/" + t.ID,
		Data:        t.Title,
	}, nil
}

// DigestAction summarizes recent feedback and sends it through the notifier.
type DigestAction struct {
	LLM            core.LLMProvider
	Corpus         core.FeedbackCorpus
	Notifier       core.Notifier
	DefaultEmailTo string
	Now            func() time.Time
}

func (a *DigestAction) Handle(ctx context.Context, req ActionRequest) (*ActionOutput, error) {
	days := 7
	if v := req.Parameters["period_days"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid period_days %q", v)
		}
		days = n
	}
	method := models.DeliveryMethod(firstNonEmpty(req.Parameters["delivery_method"], string(models.DeliveryEmail)))
	if !method.Valid() {
		return nil, fmt.Errorf("unknown delivery method %q", method)
	}

	end := a.Now().UTC()
	stats, err := a.Corpus.WindowStats(ctx, req.ProjectID, end.AddDate(0, 0, -days), end)
	if err != nil {
		return nil, fmt.Errorf("load window stats: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Period: last %d days\nItems: %d\nAverage sentiment: %.2f\nChurn mentions: %d\n",
		days, stats.Total, stats.AvgSentiment, stats.ChurnMentions)
	for _, th := range stats.Themes {
		fmt.Fprintf(&sb, "Theme %q: %d mentions, sentiment %.2f\n", th.Theme, th.Count, th.AvgSentiment)
	}
	for name, n := range stats.CompetitorMentions {
		fmt.Fprintf(&sb, "Competitor %q: %d mentions\n", name, n)
	}

	digest, err := a.LLM.Generate(ctx,
		"Write a short plain-text feedback digest for a product team from these statistics. Lead with what changed.",
		sb.String())
	if err != nil {
		return nil, fmt.Errorf("generate digest: %w", err)
	}
	digest = models.NormalizeContent(digest)

	err = a.Notifier.Deliver(ctx, core.Delivery{
		ProjectID:    req.ProjectID,
		Method:       method,
		Subject:      fmt.Sprintf("Feedback digest: last %d days", days),
		Body:         digest,
		EmailTo:      firstNonEmpty(req.Parameters["email_to"], a.DefaultEmailTo),
		SlackChannel: req.Parameters["slack_channel"],
	})
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Data: digest}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
