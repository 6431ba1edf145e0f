package httpapi

import (
	"net/http"

	"creatorhub-engine/pkg/config"
	"creatorhub-engine/pkg/db/pagination"
	"creatorhub-engine/pkg/errutil"
	"creatorhub-engine/services/consumption"
	"creatorhub-engine/services/earnings"
	"creatorhub-engine/services/ingress"
	"creatorhub-engine/services/post"
	"creatorhub-engine/services/scoring"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// Handler exposes the engine operations as JSON endpoints. Every handler
// reports failures through c.Error and leaves rendering to middleware.Error.
type Handler struct {
	posts       *post.Service
	ingress     *ingress.Service
	consumption *consumption.Aggregator
	ledger      *earnings.Ledger
	baseRate    float64
}

type HandlerParams struct {
	fx.In

	Config      *config.Config
	Posts       *post.Service
	Ingress     *ingress.Service
	Consumption *consumption.Aggregator
	Ledger      *earnings.Ledger
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		posts:       p.Posts,
		ingress:     p.Ingress,
		consumption: p.Consumption,
		ledger:      p.Ledger,
		baseRate:    p.Config.Earnings.BaseRate,
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func bindPage(c *gin.Context) (pagination.Pagination, bool) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return page, false
	}
	return page, true
}

func (h *Handler) RegisterPost(c *gin.Context) {
	var req post.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	req.PostID = c.Param("post_id")

	p, err := h.posts.Register(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ReportEngagement(c *gin.Context) {
	var req ingress.Report
	if !bindJSON(c, &req) {
		return
	}
	req.PostID = c.Param("post_id")

	res, err := h.ingress.ReportEngagement(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RevokeEngagement(c *gin.Context) {
	res, err := h.ingress.RevokeEngagement(c.Request.Context(), c.Param("post_id"), c.Query("actor_id"), c.Query("type"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type consumptionRequest struct {
	SessionID string `json:"session_id"`
	consumption.Observation
}

func (h *Handler) ReportConsumption(c *gin.Context) {
	var req consumptionRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.consumption.Record(c.Request.Context(), c.Param("post_id"), req.SessionID, req.Observation)
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *Handler) Aggregates(c *gin.Context) {
	agg, err := h.posts.Aggregates(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (h *Handler) PostEarnings(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}
	res, err := h.ledger.ListByPost(c.Request.Context(), c.Param("post_id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreatorEarnings(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}
	res, err := h.ledger.ListByCreator(c.Request.Context(), c.Param("creator_id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreatorSummary(c *gin.Context) {
	res, err := h.ledger.Summary(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Estimate previews a payout for hypothetical inputs. Nothing is persisted.
func (h *Handler) Estimate(c *gin.Context) {
	var req scoring.EstimateInput
	if !bindJSON(c, &req) {
		return
	}

	b, err := scoring.Estimate(h.baseRate, req)
	if err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid estimate input", err))
		return
	}
	c.JSON(http.StatusOK, b)
}
