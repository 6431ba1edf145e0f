package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"creatorhub-engine/pkg/taskname"
	"creatorhub-engine/services/ingress"
	"creatorhub-engine/services/post"

	"github.com/hibiken/asynq"
)

type ViewCounter interface {
	IncrementView(ctx context.Context, postID string) error
}

// ViewHandler applies queued view increments.
type ViewHandler struct {
	views ViewCounter
}

func NewViewHandler(svc *ingress.Service) *ViewHandler {
	return &ViewHandler{views: svc}
}

func (h *ViewHandler) HandleViewTask(ctx context.Context, t *asynq.Task) error {
	var payload ingress.ViewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	err := h.views.IncrementView(ctx, payload.PostID)
	if errors.Is(err, post.ErrNotFound) {
		return fmt.Errorf("post %s: %w", payload.PostID, asynq.SkipRetry)
	}
	return err
}

func RegisterTasks(mux *asynq.ServeMux, views *ViewHandler, r *Recomputer) {
	mux.HandleFunc(taskname.PostViewIncrement, views.HandleViewTask)
	mux.HandleFunc(taskname.AggregatesRecompute, r.HandleAggregatesTask)
}
