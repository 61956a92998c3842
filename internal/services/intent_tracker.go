package services

import (
	"context"
	"fmt"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/models"
)

var intentTransitions = map[models.IntentState][]models.IntentState{
	models.IntentPending:   {models.IntentConfirmed, models.IntentCancelled},
	models.IntentConfirmed: {models.IntentExecuting},
	models.IntentExecuting: {models.IntentExecuted, models.IntentFailed},
}

func allowedTransition(from, to models.IntentState) bool {
	for _, next := range intentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IntentTracker moves action intents through their lifecycle. The state is
// stored on the message, so every replica and every restart sees the same claim.
type IntentTracker struct {
	db core.DbClient
}

func NewIntentTracker(db core.DbClient) *IntentTracker {
	return &IntentTracker{db: db}
}

// State reads the lifecycle state of the intent carried by msg.
func (t *IntentTracker) State(msg *models.Message) models.IntentState {
	if msg.ActionState == "" {
		return models.IntentPending
	}
	return msg.ActionState
}

// Transition moves messageID from one state to the next with a compare-and-swap.
// Losing the swap means another caller already moved the intent.
func (t *IntentTracker) Transition(ctx context.Context, messageID string, from, to models.IntentState) error {
	if !allowedTransition(from, to) {
		return fmt.Errorf("intent %s cannot move from %s to %s: %w", messageID, from, to, core.ErrInvalidTransition)
	}
	ok, err := t.db.TransitionIntent(ctx, messageID, from, to)
	if err != nil {
		return fmt.Errorf("transition intent %s: %w", messageID, err)
	}
	if ok {
		return nil
	}
	cur := models.IntentState("unknown")
	if msg, err := t.db.GetMessage(ctx, messageID); err == nil && msg != nil {
		cur = t.State(msg)
	}
	return fmt.Errorf("intent %s is %s: %w", messageID, cur, core.ErrActionNotPending)
}
