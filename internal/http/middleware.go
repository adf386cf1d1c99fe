package http

import (
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/logging"
)

// Actor identity headers. Authentication happens upstream.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorName = "X-Actor-Name"
)

const actorKey = "actor"

// actorMiddleware resolves the requesting actor from headers. Mutating
// requests require an actor id; a missing role means guest.
func (s *Server) actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Request().Header
		actor := content.Actor{
			ID:   strings.TrimSpace(h.Get(HeaderActorID)),
			Name: strings.TrimSpace(h.Get(HeaderActorName)),
		}
		if raw := h.Get(HeaderActorRole); raw != "" {
			role, err := content.ParseRole(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unknown actor role")
			}
			actor.Role = role
		}
		if actor.ID == "" && c.Request().Method != http.MethodGet {
			return echo.NewHTTPError(http.StatusUnauthorized, HeaderActorID+" header is required")
		}
		if actor.ID != "" {
			c.SetRequest(c.Request().WithContext(logging.WithActorID(c.Request().Context(), actor.ID)))
		}
		c.Set(actorKey, actor)
		return next(c)
	}
}

func actorOf(c echo.Context) content.Actor {
	a, _ := c.Get(actorKey).(content.Actor)
	return a
}

// actorLimiter keeps one token bucket per actor.
type actorLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// maxTrackedActors bounds the limiter table; it is reset when exceeded.
const maxTrackedActors = 10000

func newActorLimiter(perSecond float64, burst int) *actorLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &actorLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *actorLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.limiters) >= maxTrackedActors {
		l.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim.Allow()
}

// rateLimit throttles publish and decision requests per actor, falling back
// to the client IP.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := actorOf(c).ID
		if key == "" {
			key = c.RealIP()
		}
		if !s.limiter.allow(key) {
			s.logger.Warn(c.Request().Context(), "rate limit exceeded", zap.String("key", key))
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}
