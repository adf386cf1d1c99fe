package http

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/publish"
	"github.com/fyrsmithlabs/contentd/internal/review"
)

// handleHealth reports liveness and queue depths.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Services: map[string]string{"orchestrator": "ok"}}
	if s.svc.Scheduler != nil {
		resp.Scheduled = s.svc.Scheduler.Registry().Len()
		resp.Services["scheduler"] = "ok"
		if !s.svc.Scheduler.Registry().HasCapacity() {
			resp.Services["scheduler"] = "full"
			resp.Status = "degraded"
		}
	}
	if s.svc.Review != nil {
		resp.InReview = len(s.svc.Review.Workflow().Active())
		resp.Services["review"] = "ok"
	}
	if s.svc.Telemetry != nil {
		if s.svc.Telemetry.Health().Degraded {
			resp.Services["telemetry"] = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleCreateContent stores a new draft.
func (s *Server) handleCreateContent(c echo.Context) error {
	var req CreateContentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title and body are required")
	}
	ctx := c.Request().Context()
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if _, err := s.svc.Repository.Get(ctx, req.ID); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "content already exists")
	}

	actor := actorOf(c)
	a := content.NewArticle(req.ID, req.Title, req.Body).
		WithCategory(req.Category).
		WithAuthor(actor.ID)
	if err := s.svc.Repository.Save(ctx, a); err != nil {
		return err
	}
	s.logger.Info(ctx, "content created", zap.String("content.id", a.ID()))
	return c.JSON(http.StatusCreated, contentResponse(a))
}

// handleGetContent returns one item.
func (s *Server) handleGetContent(c echo.Context) error {
	item, err := s.svc.Repository.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, contentResponse(item))
}

// handlePublish runs the orchestrator for one item.
func (s *Server) handlePublish(c echo.Context) error {
	ctx := c.Request().Context()
	item, err := s.svc.Repository.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	var body PublishRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	opts, ok := body.options()
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown priority")
	}

	res, err := s.svc.Orchestrator.PublishContent(ctx, item, publish.NewRequest(actorOf(c), opts...))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, publishResponse(item, res))
}

// handleCancelSchedule cancels a pending scheduled publication.
func (s *Server) handleCancelSchedule(c echo.Context) error {
	if s.svc.Scheduler == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "scheduling is not enabled")
	}
	id := c.Param("id")
	cancelled := s.svc.Scheduler.CancelScheduledPublishing(c.Request().Context(), id)
	if !cancelled {
		return c.JSON(http.StatusNotFound, CancelResponse{ContentID: id})
	}
	return c.JSON(http.StatusOK, CancelResponse{ContentID: id, Cancelled: true})
}

// handleGetReview returns the review case for an item.
func (s *Server) handleGetReview(c echo.Context) error {
	if s.svc.Review == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "review is not enabled")
	}
	rc, ok := s.svc.Review.Workflow().Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no review case for content")
	}
	return c.JSON(http.StatusOK, rc)
}

// handleDecision records a reviewer decision.
func (s *Server) handleDecision(c echo.Context) error {
	if s.svc.Review == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "review is not enabled")
	}
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := review.ParseDecision(req.Decision)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "decision must be approved, rejected or needs_revision")
	}

	rc, err := s.svc.Review.ProcessReviewDecision(c.Request().Context(), c.Param("id"), actorOf(c), d, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rc)
}

// handleWithdraw ends an active review case.
func (s *Server) handleWithdraw(c echo.Context) error {
	if s.svc.Review == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "review is not enabled")
	}
	rc, err := s.svc.Review.Withdraw(c.Request().Context(), c.Param("id"), actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rc)
}

// handleStrategies lists registered strategies with usage statistics.
func (s *Server) handleStrategies(c echo.Context) error {
	o := s.svc.Orchestrator
	resp := StrategiesResponse{
		AutoSelection: o.Config().AutoSelection,
		Pinned:        o.Pinned(),
	}
	for _, info := range o.Strategies() {
		usage, _ := o.Stats(info.Name)
		usage.Strategy = info.Name
		resp.Strategies = append(resp.Strategies, StrategyResponse{
			Info:        info,
			Usage:       usage,
			SuccessRate: usage.SuccessRate(),
			AvgMS:       ms(usage.AverageDuration()),
			Performance: o.Performance(info.Name),
		})
	}
	return c.JSON(http.StatusOK, resp)
}
