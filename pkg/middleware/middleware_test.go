package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creatorhub-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())
}

type counterMock struct {
	incrFn func(ctx context.Context, key string, window time.Duration) (int64, error)
}

func (m *counterMock) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return m.incrFn(ctx, key, window)
}

func TestErrorRendersBaseError(t *testing.T) {
	r := gin.New()
	r.Use(Error())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errutil.NotFound("post not found", nil))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestErrorRendersUnknownAsInternal(t *testing.T) {
	r := gin.New()
	r.Use(Error())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("db down"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "db down")
}

func TestThrottle(t *testing.T) {
	var n int64
	counter := &counterMock{incrFn: func(ctx context.Context, key string, window time.Duration) (int64, error) {
		n++
		return n, nil
	}}

	r := gin.New()
	r.Use(Throttle(counter, 2, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}

	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestThrottleFailsOpen(t *testing.T) {
	counter := &counterMock{incrFn: func(ctx context.Context, key string, window time.Duration) (int64, error) {
		return 0, errors.New("redis down")
	}}

	r := gin.New()
	r.Use(Throttle(counter, 1, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
}
