package suggestions

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

// Service exposes the suggestion feed and its one-way lifecycle.
type Service struct {
	db core.DbClient
}

func NewService(db core.DbClient) *Service {
	return &Service{db: db}
}

// List returns suggestions in status (active when empty), critical first and
// newest first within a priority. An empty feed is not an error.
func (s *Service) List(ctx context.Context, projectID string, status models.SuggestionStatus) ([]models.ProactiveSuggestion, error) {
	if status == "" {
		status = models.SuggestionActive
	}
	if !validStatus(status) {
		return nil, &core.InvalidInputError{Reason: fmt.Sprintf("unknown suggestion status %q", status)}
	}
	out, err := s.db.ListSuggestions(ctx, projectID, status)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if out == nil {
		out = []models.ProactiveSuggestion{}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.ProactiveSuggestion, error) {
	sg, err := s.db.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sg == nil {
		return nil, fmt.Errorf("suggestion %s: %w", id, core.ErrNotFound)
	}
	return sg, nil
}

// Dismiss permanently hides a suggestion. Dismissing twice is a no-op.
func (s *Service) Dismiss(ctx context.Context, id string) (*models.ProactiveSuggestion, error) {
	return s.resolve(ctx, id, models.SuggestionDismissed)
}

// MarkActedUpon records that the user ran the suggested query.
func (s *Service) MarkActedUpon(ctx context.Context, id string) (*models.ProactiveSuggestion, error) {
	return s.resolve(ctx, id, models.SuggestionActedUpon)
}

func (s *Service) resolve(ctx context.Context, id string, to models.SuggestionStatus) (*models.ProactiveSuggestion, error) {
	ok, err := s.db.TransitionSuggestion(ctx, id, models.SuggestionActive, to)
	if err != nil {
		return nil, err
	}
	sg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		log.Info().Str("suggestion_id", id).Str("status", string(to)).Msg("suggestion resolved")
		return sg, nil
	}
	if sg.Status == to {
		return sg, nil
	}
	return nil, fmt.Errorf("suggestion %s is %s, cannot become %s: %w", id, sg.Status, to, core.ErrInvalidTransition)
}

func validStatus(st models.SuggestionStatus) bool {
	switch st {
	case models.SuggestionActive, models.SuggestionDismissed, models.SuggestionActedUpon:
		return true
	}
	return false
}
