package post

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"creatorhub-engine/pkg/errutil"
	"creatorhub-engine/services/scoring"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	repo   Repository
	logger *zap.Logger
}

type ServiceParams struct {
	fx.In

	Repository Repository
	Logger     *zap.Logger `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: p.Repository, logger: logger}
}

// RegisterRequest is sent by the content surface when a post is published or
// its shape changes.
type RegisterRequest struct {
	PostID      string   `json:"-"`
	CreatorID   string   `json:"creator_id"`
	Kind        string   `json:"kind"`
	Measurement *float64 `json:"measurement,omitempty"`
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Post, error) {
	if strings.TrimSpace(req.PostID) == "" || strings.TrimSpace(req.CreatorID) == "" {
		return nil, errutil.ValidationFailed("post_id and creator_id are required", nil)
	}
	kind, err := scoring.ParseContentKind(req.Kind)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid kind", err)
	}
	if m := req.Measurement; m != nil && (math.IsNaN(*m) || math.IsInf(*m, 0) || *m < 0) {
		return nil, errutil.ValidationFailed("measurement must be a non-negative number", nil)
	}

	now := time.Now().UTC()
	p := &Post{
		ID:          req.PostID,
		CreatorID:   req.CreatorID,
		Kind:        kind,
		Measurement: req.Measurement,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		s.logger.Error("failed to register post", zap.String("post_id", req.PostID), zap.Error(err))
		return nil, errutil.Internal("failed to register post", err)
	}

	return s.repo.Get(ctx, req.PostID)
}

func (s *Service) Aggregates(ctx context.Context, postID string) (Aggregates, error) {
	p, err := s.repo.Get(ctx, postID)
	if errors.Is(err, ErrNotFound) {
		return Aggregates{}, errutil.NotFound("post not found", err)
	}
	if err != nil {
		return Aggregates{}, errutil.Internal("failed to load post", err)
	}
	return p.Aggregates(), nil
}
