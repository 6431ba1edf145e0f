package earnings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"creatorhub-engine/pkg/taskname"
	"creatorhub-engine/services/engagement"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ProcessPayload struct {
	PostID       string `json:"post_id"`
	EngagementID string `json:"engagement_id"`
}

func NewProcessTask(postID, engagementID string) (*asynq.Task, error) {
	b, err := json.Marshal(ProcessPayload{PostID: postID, EngagementID: engagementID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.EarningsProcess, b), nil
}

// ProcessTaskID is the queue dedupe id of an engagement's processing task.
func ProcessTaskID(postID, engagementID string) string {
	return fmt.Sprintf("earnings:%s:%s", postID, engagementID)
}

type EventGetter interface {
	Get(ctx context.Context, id string) (*engagement.Event, error)
}

type TaskHandler struct {
	events    EventGetter
	processor processor
}

type TaskHandlerParams struct {
	fx.In

	Events    engagement.Repository
	Processor *Processor
}

func NewTaskHandler(p TaskHandlerParams) *TaskHandler {
	return &TaskHandler{events: p.Events, processor: p.Processor}
}

// HandleProcessTask runs the processor for a queued engagement. A failed
// attempt is returned as an error so the queue retries it.
func (h *TaskHandler) HandleProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("post_id", payload.PostID),
		zap.String("engagement_id", payload.EngagementID),
	)

	ev, err := h.events.Get(ctx, payload.EngagementID)
	if errors.Is(err, engagement.ErrNotFound) {
		zapLog.Warn("engagement no longer exists")
		return fmt.Errorf("engagement %s: %w", payload.EngagementID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	res := h.processor.Process(ctx, payload.PostID, "", ev)
	if res.outcome == outcomeFailed {
		return fmt.Errorf("earnings for engagement %s not credited", payload.EngagementID)
	}
	zapLog.Debug("earnings task done", zap.String("outcome", string(res.outcome)))
	return nil
}

func RegisterTasks(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(taskname.EarningsProcess, h.HandleProcessTask)
}
