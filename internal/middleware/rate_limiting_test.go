package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/2beens/fittrack/internal/middleware"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
)

func TestRateLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiterMock := NewMockRequestRateLimiter(ctrl)
	metricsManager := metrics.NewTestManager()

	called := 0
	handler := middleware.RateLimit(limiterMock, "bridge", 10, metricsManager)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called++
		}),
	)

	limiterMock.EXPECT().
		Allow(gomock.Any(), "bridge", redis_rate.PerMinute(10)).
		Return(&redis_rate.Result{Allowed: 1, Remaining: 9}, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/invoke/nedb_find", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, called)

	limiterMock.EXPECT().
		Allow(gomock.Any(), "bridge", redis_rate.PerMinute(10)).
		Return(&redis_rate.Result{Allowed: 0, RetryAfter: 2500 * time.Millisecond}, nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/invoke/nedb_find", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "3", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":"internal","error":"rate limited, retry after 3 seconds"}`, rr.Body.String())
	assert.Equal(t, 1, called)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))

	limiterMock.EXPECT().
		Allow(gomock.Any(), "bridge", gomock.Any()).
		Return(nil, errors.New("redis down"))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/invoke/nedb_find", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 1, called)
}

func TestRateLimit_KeyedPerCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiterMock := NewMockRequestRateLimiter(ctrl)

	r := mux.NewRouter()
	r.HandleFunc("/invoke/{command}", func(w http.ResponseWriter, r *http.Request) {}).Methods("POST")
	r.Use(middleware.RateLimit(limiterMock, "bridge", 60, nil))

	gomock.InOrder(
		limiterMock.EXPECT().
			Allow(gomock.Any(), "bridge:nedb_find", redis_rate.PerMinute(60)).
			Return(&redis_rate.Result{Allowed: 1}, nil),
		limiterMock.EXPECT().
			Allow(gomock.Any(), "bridge:nedb_insert", redis_rate.PerMinute(60)).
			Return(&redis_rate.Result{Allowed: 1}, nil),
	)

	for _, command := range []string{"nedb_find", "nedb_insert"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest("POST", "/invoke/"+command, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}
