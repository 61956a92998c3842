package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/sairevanth-zz/signalsloop/internal/config"
	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var (
	_ core.DbClient       = (*DatabaseClient)(nil)
	_ core.FeedbackCorpus = (*DatabaseClient)(nil)
)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Conversations

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	const q = `
		INSERT INTO conversations (id, project_id, title, is_pinned, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q,
		conv.ID, conv.ProjectID, conv.Title, conv.IsPinned, conv.LastMessageAt, conv.CreatedAt)
	return err
}

func (c *DatabaseClient) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	const q = `
		SELECT id, project_id, title, is_pinned, last_message_at, created_at
		FROM conversations WHERE id = $1
	`
	var conv models.Conversation
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&conv.ID, &conv.ProjectID, &conv.Title, &conv.IsPinned, &conv.LastMessageAt, &conv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *DatabaseClient) ListConversations(ctx context.Context, projectID string) ([]models.Conversation, error) {
	const q = `
		SELECT id, project_id, title, is_pinned, last_message_at, created_at
		FROM conversations
		WHERE project_id = $1
		ORDER BY is_pinned DESC, last_message_at DESC, created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(
			&conv.ID, &conv.ProjectID, &conv.Title, &conv.IsPinned, &conv.LastMessageAt, &conv.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) SetConversationPinned(ctx context.Context, id string, pinned bool) error {
	res, err := c.db.ExecContext(ctx, `UPDATE conversations SET is_pinned = $2 WHERE id = $1`, id, pinned)
	if err != nil {
		return err
	}
	return expectRow(res, "conversation", id)
}

// DeleteConversation removes the conversation; messages cascade.
func (c *DatabaseClient) DeleteConversation(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, "conversation", id)
}

// Messages

func (c *DatabaseClient) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	sources, metadata, intent, err := encodeMessageJSON(msg)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var convID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, msg.ConversationID).Scan(&convID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, core.ErrNotFound)
	}
	if err != nil {
		return err
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM messages WHERE conversation_id = $1`,
		msg.ConversationID).Scan(&msg.Position); err != nil {
		return err
	}

	const q = `
		INSERT INTO messages
			(id, conversation_id, role, content, position, sources, metadata, query_type,
			 action_intent, action_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''), $11)
	`
	if _, err := tx.ExecContext(ctx, q,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.Position,
		sources, metadata, string(msg.QueryType), intent, string(msg.ActionState), msg.CreatedAt,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = $2 WHERE id = $1`, msg.ConversationID, msg.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

const messageColumns = `id, conversation_id, role, content, position, sources, metadata,
	COALESCE(query_type, ''), action_intent, COALESCE(action_state, ''), COALESCE(feedback, ''), created_at`

func (c *DatabaseClient) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY position ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// SetMessageFeedback records a rating once; a second call fails with ErrFeedbackAlreadySet.
func (c *DatabaseClient) SetMessageFeedback(ctx context.Context, id string, feedback models.Feedback) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE messages SET feedback = $2 WHERE id = $1 AND feedback IS NULL`, id, string(feedback))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	m, err := c.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("message %s: %w", id, core.ErrNotFound)
	}
	return core.ErrFeedbackAlreadySet
}

func (c *DatabaseClient) TransitionIntent(ctx context.Context, messageID string, from, to models.IntentState) (bool, error) {
	const stmt = `
		UPDATE messages SET action_state = $3
		WHERE id = $1 AND action_intent IS NOT NULL
		  AND COALESCE(action_state, 'pending_confirmation') = $2
	`
	res, err := c.db.ExecContext(ctx, stmt, messageID, string(from), string(to))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Actions

func (c *DatabaseClient) InsertActionResult(ctx context.Context, res *models.ActionResult) error {
	if res == nil {
		return errors.New("nil action result")
	}
	const q = `
		INSERT INTO action_results
			(id, message_id, project_id, action_type, success, created_resource_url, data, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`
	_, err := c.db.ExecContext(ctx, q,
		res.ID, res.MessageID, res.ProjectID, res.ActionType.String(), res.Success,
		res.CreatedResourceURL, res.Data, res.CreatedAt)
	return err
}

func (c *DatabaseClient) GetActionResult(ctx context.Context, messageID string) (*models.ActionResult, error) {
	const q = `
		SELECT id, message_id, project_id, action_type, success,
		       COALESCE(created_resource_url, ''), COALESCE(data, ''), created_at
		FROM action_results WHERE message_id = $1
	`
	var (
		r   models.ActionResult
		tag string
	)
	err := c.db.QueryRowContext(ctx, q, messageID).Scan(
		&r.ID, &r.MessageID, &r.ProjectID, &tag, &r.Success, &r.CreatedResourceURL, &r.Data, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ActionType, _ = models.ParseActionType(tag)
	return &r, nil
}

func (c *DatabaseClient) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if t == nil {
		return errors.New("nil ticket")
	}
	const q = `
		INSERT INTO tickets (id, project_id, title, description, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q, t.ID, t.ProjectID, t.Title, t.Description, t.Priority, t.CreatedAt)
	return err
}

// Scheduled queries

const scheduledColumns = `id, project_id, query_text, frequency, day_of_week, day_of_month, time_utc,
	delivery_method, email_to, slack_channel, is_active, next_run_at, last_run_at,
	last_delivery_error, created_at, updated_at`

func (c *DatabaseClient) CreateScheduledQuery(ctx context.Context, q *models.ScheduledQuery) error {
	if q == nil {
		return errors.New("nil scheduled query")
	}
	const stmt = `
		INSERT INTO scheduled_queries
			(id, project_id, query_text, frequency, day_of_week, day_of_month, time_utc,
			 delivery_method, email_to, slack_channel, is_active, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := c.db.ExecContext(ctx, stmt,
		q.ID, q.ProjectID, q.QueryText, string(q.Frequency), nullInt(q.DayOfWeek), nullInt(q.DayOfMonth),
		q.TimeUTC, string(q.DeliveryMethod), q.EmailTo, q.SlackChannel, q.IsActive, q.NextRunAt,
		q.CreatedAt, q.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetScheduledQuery(ctx context.Context, id string) (*models.ScheduledQuery, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+scheduledColumns+` FROM scheduled_queries WHERE id = $1`, id)
	q, err := scanScheduled(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (c *DatabaseClient) ListScheduledQueries(ctx context.Context, projectID string) ([]models.ScheduledQuery, error) {
	return c.queryScheduled(ctx,
		`SELECT `+scheduledColumns+` FROM scheduled_queries WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
}

func (c *DatabaseClient) ListDueScheduledQueries(ctx context.Context, now time.Time) ([]models.ScheduledQuery, error) {
	return c.queryScheduled(ctx,
		`SELECT `+scheduledColumns+` FROM scheduled_queries
		 WHERE is_active AND next_run_at <= $1 ORDER BY next_run_at ASC`, now)
}

// UpdateScheduledQuery only writes while next_run_at still equals expectedNextRun.
func (c *DatabaseClient) UpdateScheduledQuery(ctx context.Context, q *models.ScheduledQuery, expectedNextRun time.Time) error {
	const stmt = `
		UPDATE scheduled_queries
		SET query_text = $2, frequency = $3, day_of_week = $4, day_of_month = $5, time_utc = $6,
		    delivery_method = $7, email_to = $8, slack_channel = $9, is_active = $10,
		    next_run_at = $11, updated_at = $12
		WHERE id = $1 AND next_run_at = $13
	`
	res, err := c.db.ExecContext(ctx, stmt,
		q.ID, q.QueryText, string(q.Frequency), nullInt(q.DayOfWeek), nullInt(q.DayOfMonth), q.TimeUTC,
		string(q.DeliveryMethod), q.EmailTo, q.SlackChannel, q.IsActive, q.NextRunAt, q.UpdatedAt,
		expectedNextRun)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	cur, err := c.GetScheduledQuery(ctx, q.ID)
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("scheduled query %s: %w", q.ID, core.ErrNotFound)
	}
	return fmt.Errorf("scheduled query %s: %w", q.ID, core.ErrConcurrentUpdate)
}

func (c *DatabaseClient) DeleteScheduledQuery(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM scheduled_queries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, "scheduled query", id)
}

// AdvanceScheduledQuery is the compare-and-swap that guards each occurrence.
func (c *DatabaseClient) AdvanceScheduledQuery(ctx context.Context, id string, expected, next, ranAt time.Time) (bool, error) {
	const stmt = `
		UPDATE scheduled_queries
		SET next_run_at = $3, last_run_at = $4, updated_at = $4
		WHERE id = $1 AND next_run_at = $2 AND is_active
	`
	res, err := c.db.ExecContext(ctx, stmt, id, expected, next, ranAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) SetScheduledQueryDelivery(ctx context.Context, id string, deliveryErr string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE scheduled_queries SET last_delivery_error = $2 WHERE id = $1`, id, deliveryErr)
	return err
}

func (c *DatabaseClient) queryScheduled(ctx context.Context, q string, args ...any) ([]models.ScheduledQuery, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScheduledQuery
	for rows.Next() {
		sq, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sq)
	}
	return out, rows.Err()
}

// Suggestions

const suggestionColumns = `id, project_id, suggestion_type, priority, title, description,
	query_suggestion, context_data, subject, status, created_at, updated_at`

func (c *DatabaseClient) InsertSuggestion(ctx context.Context, s *models.ProactiveSuggestion) (bool, error) {
	if s == nil {
		return false, errors.New("nil suggestion")
	}
	ctxData, err := marshalNullable(s.ContextData, len(s.ContextData) == 0)
	if err != nil {
		return false, fmt.Errorf("encode context_data: %w", err)
	}
	const q = `
		INSERT INTO proactive_suggestions
			(id, project_id, suggestion_type, priority, title, description, query_suggestion,
			 context_data, subject, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (project_id, suggestion_type, subject) WHERE status = 'active' DO NOTHING
	`
	res, err := c.db.ExecContext(ctx, q,
		s.ID, s.ProjectID, s.SuggestionType.String(), s.Priority.String(), s.Title, s.Description,
		s.QuerySuggestion, ctxData, s.Subject, string(s.Status), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) GetSuggestion(ctx context.Context, id string) (*models.ProactiveSuggestion, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM proactive_suggestions WHERE id = $1`, id)
	s, err := scanSuggestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *DatabaseClient) ListSuggestions(ctx context.Context, projectID string, status models.SuggestionStatus) ([]models.ProactiveSuggestion, error) {
	return c.querySuggestions(ctx,
		`SELECT `+suggestionColumns+` FROM proactive_suggestions
		 WHERE project_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`, projectID, string(status))
}

func (c *DatabaseClient) ListSuggestionsSince(ctx context.Context, projectID string, since time.Time) ([]models.ProactiveSuggestion, error) {
	return c.querySuggestions(ctx,
		`SELECT `+suggestionColumns+` FROM proactive_suggestions
		 WHERE project_id = $1 AND created_at >= $2
		 ORDER BY created_at DESC`, projectID, since)
}

func (c *DatabaseClient) TransitionSuggestion(ctx context.Context, id string, from, to models.SuggestionStatus) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE proactive_suggestions SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) querySuggestions(ctx context.Context, q string, args ...any) ([]models.ProactiveSuggestion, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProactiveSuggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Feedback corpus

// SearchFeedback finds the top-k feedback items closest to the query embedding.
func (c *DatabaseClient) SearchFeedback(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.FeedbackHit, error) {
	const q = `
		SELECT id, item_type, title, content, 1 - (embedding <=> $2) AS similarity
		FROM feedback_items
		WHERE project_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, projectID, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FeedbackHit
	for rows.Next() {
		var h models.FeedbackHit
		if err := rows.Scan(&h.ID, &h.Type, &h.Title, &h.Content, &h.Similarity); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) WindowStats(ctx context.Context, projectID string, start, end time.Time) (*models.WindowStats, error) {
	ws := &models.WindowStats{Start: start, End: end, CompetitorMentions: map[string]int{}}

	const totals = `
		SELECT count(*), COALESCE(avg(sentiment), 0), count(*) FILTER (WHERE churn_signal)
		FROM feedback_items
		WHERE project_id = $1 AND created_at >= $2 AND created_at < $3
	`
	if err := c.db.QueryRowContext(ctx, totals, projectID, start, end).
		Scan(&ws.Total, &ws.AvgSentiment, &ws.ChurnMentions); err != nil {
		return nil, fmt.Errorf("window totals: %w", err)
	}

	const themes = `
		SELECT t, count(*), COALESCE(avg(sentiment), 0), bool_or(is_feature_request)
		FROM feedback_items, unnest(themes) AS t
		WHERE project_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY t
		ORDER BY count(*) DESC
	`
	rows, err := c.db.QueryContext(ctx, themes, projectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("window themes: %w", err)
	}
	for rows.Next() {
		var ts models.ThemeStat
		if err := rows.Scan(&ts.Theme, &ts.Count, &ts.AvgSentiment, &ts.FeatureAsk); err != nil {
			rows.Close()
			return nil, err
		}
		ws.Themes = append(ws.Themes, ts)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const competitors = `
		SELECT comp, count(*)
		FROM feedback_items, unnest(competitors) AS comp
		WHERE project_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY comp
	`
	crows, err := c.db.QueryContext(ctx, competitors, projectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("window competitors: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			name string
			n    int
		)
		if err := crows.Scan(&name, &n); err != nil {
			return nil, err
		}
		ws.CompetitorMentions[name] = n
	}
	return ws, crows.Err()
}

func (c *DatabaseClient) ActiveProjects(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT DISTINCT project_id FROM feedback_items WHERE created_at >= $1 ORDER BY project_id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m                                models.Message
		role, queryType, state, feedback string
		sources, metadata, intent        []byte
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Position,
		&sources, &metadata, &queryType, &intent, &state, &feedback, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = models.Role(role)
	m.ActionState = models.IntentState(state)
	m.QueryType = models.QueryType(queryType)
	m.Feedback = models.Feedback(feedback)
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &m.Sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
	}
	if len(metadata) > 0 {
		m.Metadata = &models.MessageMetadata{}
		if err := json.Unmarshal(metadata, m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(intent) > 0 {
		m.ActionIntent = &models.ActionIntent{}
		if err := json.Unmarshal(intent, m.ActionIntent); err != nil {
			return nil, fmt.Errorf("decode action_intent: %w", err)
		}
	}
	return &m, nil
}

func scanScheduled(row rowScanner) (*models.ScheduledQuery, error) {
	var (
		q                   models.ScheduledQuery
		frequency, method   string
		dayOfWeek, dayOfMon sql.NullInt32
		lastRun             sql.NullTime
	)
	if err := row.Scan(&q.ID, &q.ProjectID, &q.QueryText, &frequency, &dayOfWeek, &dayOfMon, &q.TimeUTC,
		&method, &q.EmailTo, &q.SlackChannel, &q.IsActive, &q.NextRunAt, &lastRun,
		&q.LastDeliveryError, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	q.Frequency = models.Frequency(frequency)
	q.DeliveryMethod = models.DeliveryMethod(method)
	if dayOfWeek.Valid {
		v := int(dayOfWeek.Int32)
		q.DayOfWeek = &v
	}
	if dayOfMon.Valid {
		v := int(dayOfMon.Int32)
		q.DayOfMonth = &v
	}
	if lastRun.Valid {
		t := lastRun.Time
		q.LastRunAt = &t
	}
	return &q, nil
}

func scanSuggestion(row rowScanner) (*models.ProactiveSuggestion, error) {
	var (
		s                     models.ProactiveSuggestion
		typ, priority, status string
		ctxData               []byte
	)
	if err := row.Scan(&s.ID, &s.ProjectID, &typ, &priority, &s.Title, &s.Description,
		&s.QuerySuggestion, &ctxData, &s.Subject, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	var ok bool
	if s.SuggestionType, ok = models.ParseSuggestionType(typ); !ok {
		return nil, fmt.Errorf("suggestion %s: unknown type %q", s.ID, typ)
	}
	if s.Priority, ok = models.ParsePriority(priority); !ok {
		return nil, fmt.Errorf("suggestion %s: unknown priority %q", s.ID, priority)
	}
	s.Status = models.SuggestionStatus(status)
	if len(ctxData) > 0 {
		if err := json.Unmarshal(ctxData, &s.ContextData); err != nil {
			return nil, fmt.Errorf("decode context_data: %w", err)
		}
	}
	return &s, nil
}

func encodeMessageJSON(m *models.Message) (sources, metadata, intent []byte, err error) {
	if sources, err = marshalNullable(m.Sources, len(m.Sources) == 0); err != nil {
		return nil, nil, nil, fmt.Errorf("encode sources: %w", err)
	}
	if metadata, err = marshalNullable(m.Metadata, m.Metadata == nil); err != nil {
		return nil, nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	if intent, err = marshalNullable(m.ActionIntent, m.ActionIntent == nil); err != nil {
		return nil, nil, nil, fmt.Errorf("encode action_intent: %w", err)
	}
	return sources, metadata, intent, nil
}

func marshalNullable(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}
