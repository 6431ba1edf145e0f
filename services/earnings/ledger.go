package earnings

import (
	"context"
	"errors"

	"creatorhub-engine/pkg/db/pagination"
	"creatorhub-engine/pkg/errutil"

	"go.uber.org/zap"
)

// Ledger is the read side of the earnings ledger.
type Ledger struct {
	repo   Repository
	logger *zap.Logger
}

func NewLedger(repo Repository, logger *zap.Logger) *Ledger {
	return &Ledger{repo: repo, logger: loggerOrNop(logger)}
}

type Page struct {
	Data     []Record            `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

func (l *Ledger) ListByPost(ctx context.Context, postID string, page pagination.Pagination) (Page, error) {
	page = page.Normalize()
	rows, err := l.repo.ListByPost(ctx, postID, page)
	if err != nil {
		return Page{}, l.listError(err, zap.String("post_id", postID))
	}
	return toPage(rows, page.Limit), nil
}

func (l *Ledger) ListByCreator(ctx context.Context, creatorID string, page pagination.Pagination) (Page, error) {
	page = page.Normalize()
	rows, err := l.repo.ListByCreator(ctx, creatorID, page)
	if err != nil {
		return Page{}, l.listError(err, zap.String("creator_id", creatorID))
	}
	return toPage(rows, page.Limit), nil
}

func (l *Ledger) Summary(ctx context.Context, creatorID string) (Summary, error) {
	s, err := l.repo.Summary(ctx, creatorID)
	if err != nil {
		l.logger.Error("failed to summarize earnings", zap.String("creator_id", creatorID), zap.Error(err))
		return Summary{}, errutil.Internal("failed to summarize earnings", err)
	}
	return s, nil
}

func (l *Ledger) listError(err error, field zap.Field) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return errutil.BadRequest("invalid cursor", err)
	}
	l.logger.Error("failed to list earnings", field, zap.Error(err))
	return errutil.Internal("failed to list earnings", err)
}

func toPage(rows []Record, limit int) Page {
	data, info := pagination.Page(rows, limit, func(r Record) string { return r.ID })
	if data == nil {
		data = []Record{}
	}
	return Page{Data: data, PageInfo: info}
}
