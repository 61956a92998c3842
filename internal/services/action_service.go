package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/metrics"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

type ExecuteRequest struct {
	MessageID  string            `json:"messageId"`
	ProjectID  string            `json:"projectId"`
	ActionType string            `json:"actionType"`
	Parameters map[string]string `json:"parameters"`
}

// ActionService confirms and executes action intents. Calling Execute is the
// explicit confirmation; nothing runs an intent on its own.
type ActionService struct {
	db        core.DbClient
	tracker   *IntentTracker
	handlers  map[models.ActionType]ActionHandler
	threshold float64
	now       func() time.Time
}

func NewActionService(db core.DbClient, tracker *IntentTracker, threshold float64) *ActionService {
	if threshold <= 0 {
		threshold = models.DefaultLowConfidenceThreshold
	}
	return &ActionService{
		db:        db,
		tracker:   tracker,
		handlers:  map[models.ActionType]ActionHandler{},
		threshold: threshold,
		now:       time.Now,
	}
}

func (s *ActionService) Register(t models.ActionType, h ActionHandler) {
	s.handlers[t] = h
}

// Execute runs the confirmed intent attached to req.MessageID at most once.
// A handler failure moves the intent to failed and records no result.
func (s *ActionService) Execute(ctx context.Context, req ExecuteRequest) (*models.ActionResult, error) {
	msg, err := s.loadIntent(ctx, req.ProjectID, req.MessageID)
	if err != nil {
		return nil, err
	}

	at := msg.ActionIntent.ActionType
	if req.ActionType != "" && req.ActionType != at.String() {
		if _, ok := models.ParseActionType(req.ActionType); !ok {
			return nil, &core.UnsupportedActionError{ActionType: req.ActionType}
		}
		return nil, &core.InvalidInputError{
			Reason: fmt.Sprintf("actionType %q does not match the pending action %q", req.ActionType, at),
		}
	}
	h, ok := s.handlers[at]
	if !ok {
		return nil, &core.UnsupportedActionError{ActionType: at.String()}
	}

	if err := s.settleIfDone(ctx, req.MessageID); err != nil {
		return nil, err
	}
	if err := s.tracker.Transition(ctx, req.MessageID, models.IntentPending, models.IntentConfirmed); err != nil {
		return nil, err
	}
	// Once claimed, the intent must reach a final state even if the caller goes away.
	bg := context.WithoutCancel(ctx)
	if err := s.tracker.Transition(bg, req.MessageID, models.IntentConfirmed, models.IntentExecuting); err != nil {
		return nil, err
	}

	params := make(map[string]string, len(msg.ActionIntent.Parameters)+len(req.Parameters))
	for k, v := range msg.ActionIntent.Parameters {
		params[k] = v
	}
	for k, v := range req.Parameters {
		params[k] = v
	}

	logger := log.With().Str("message_id", req.MessageID).Str("action_type", at.String()).Logger()

	out, err := h.Handle(ctx, ActionRequest{ProjectID: req.ProjectID, MessageID: req.MessageID, Parameters: params})
	if err != nil {
		s.fail(bg, req.MessageID, at)
		logger.Warn().Err(err).Msg("action failed")
		return nil, &core.ActionExecutionError{ActionType: at.String(), Err: err}
	}

	res := &models.ActionResult{
		ID:                 uuid.NewString(),
		MessageID:          req.MessageID,
		ProjectID:          req.ProjectID,
		ActionType:         at,
		Success:            true,
		CreatedResourceURL: out.ResourceURL,
		Data:               out.Data,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.db.InsertActionResult(bg, res); err != nil {
		s.fail(bg, req.MessageID, at)
		if out.Cleanup != nil {
			if cerr := out.Cleanup(bg); cerr != nil {
				logger.Warn().Err(cerr).Msg("cleanup after unrecorded action failed")
			}
		}
		logger.Error().Err(err).Msg("action ran but result was not stored")
		return nil, &core.ActionExecutionError{ActionType: at.String(), Err: fmt.Errorf("store result: %w", err)}
	}
	if err := s.tracker.Transition(bg, req.MessageID, models.IntentExecuting, models.IntentExecuted); err != nil {
		logger.Warn().Err(err).Msg("result stored but intent state not updated")
	}
	metrics.ActionsExecuted.WithLabelValues(at.String(), "ok").Inc()
	logger.Info().Str("resource_url", res.CreatedResourceURL).Msg("action executed")

	return res, nil
}

func (s *ActionService) fail(ctx context.Context, messageID string, at models.ActionType) {
	if err := s.tracker.Transition(ctx, messageID, models.IntentExecuting, models.IntentFailed); err != nil {
		log.Warn().Err(err).Str("message_id", messageID).Msg("could not mark intent failed")
	}
	metrics.ActionsExecuted.WithLabelValues(at.String(), "error").Inc()
}

// Cancel declines a pending intent. No result is created.
func (s *ActionService) Cancel(ctx context.Context, projectID, messageID string) error {
	if _, err := s.loadIntent(ctx, projectID, messageID); err != nil {
		return err
	}
	if err := s.settleIfDone(ctx, messageID); err != nil {
		return err
	}
	return s.tracker.Transition(ctx, messageID, models.IntentPending, models.IntentCancelled)
}

// Confirmation returns the confirm-dialog state for the intent on messageID.
func (s *ActionService) Confirmation(ctx context.Context, projectID, messageID string) (*models.Confirmation, error) {
	msg, err := s.loadIntent(ctx, projectID, messageID)
	if err != nil {
		return nil, err
	}
	state := s.tracker.State(msg)
	if state != models.IntentExecuted {
		if res, err := s.db.GetActionResult(ctx, messageID); err == nil && res != nil {
			state = models.IntentExecuted
		}
	}

	c := msg.ActionIntent.Confirmation(s.threshold)
	c.MessageID = messageID
	c.State = string(state)
	c.ConfirmEnabled = state == models.IntentPending
	return &c, nil
}

func (s *ActionService) Result(ctx context.Context, messageID string) (*models.ActionResult, error) {
	return s.db.GetActionResult(ctx, messageID)
}

// Artifact returns the stored output of an executed intent, such as a report.
func (s *ActionService) Artifact(ctx context.Context, projectID, messageID string) ([]byte, string, error) {
	msg, err := s.loadIntent(ctx, projectID, messageID)
	if err != nil {
		return nil, "", err
	}
	res, err := s.db.GetActionResult(ctx, messageID)
	if err != nil {
		return nil, "", err
	}
	if res == nil {
		return nil, "", fmt.Errorf("result for message %s: %w", messageID, core.ErrNotFound)
	}
	src, ok := s.handlers[msg.ActionIntent.ActionType].(ArtifactSource)
	if !ok {
		return nil, "", fmt.Errorf("%s has no downloadable output: %w", msg.ActionIntent.ActionType, core.ErrNotFound)
	}
	return src.Artifact(ctx, projectID, messageID)
}

func (s *ActionService) loadIntent(ctx context.Context, projectID, messageID string) (*models.Message, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message %s: %w", messageID, core.ErrNotFound)
	}
	conv, err := s.db.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.ProjectID != projectID {
		return nil, fmt.Errorf("message %s: %w", messageID, core.ErrNotFound)
	}
	if msg.Role != models.RoleAssistant || msg.ActionIntent == nil || !msg.ActionIntent.RequiresAction {
		return nil, fmt.Errorf("message %s has no action to confirm: %w", messageID, core.ErrActionNotPending)
	}
	return msg, nil
}

// settleIfDone rejects an intent that already has a durable result and
// repairs its state if the final transition was lost.
func (s *ActionService) settleIfDone(ctx context.Context, messageID string) error {
	res, err := s.db.GetActionResult(ctx, messageID)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	_, _ = s.db.TransitionIntent(ctx, messageID, models.IntentExecuting, models.IntentExecuted)
	return fmt.Errorf("intent %s already executed: %w", messageID, core.ErrActionNotPending)
}
