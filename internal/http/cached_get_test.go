package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"owl-restaurant/internal/cache"
	"owl-restaurant/internal/domain"
)

func TestCachedGET_HitMissAndInvalidation(t *testing.T) {
	s := newTestServer(t)
	summary := "/dashboard/api/v1/summary"

	rec := s.do(t, http.MethodGet, summary, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get(headerCache))

	rec = s.do(t, http.MethodGet, summary, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get(headerCache))

	// 缓存命中前先鉴权
	rec = s.do(t, http.MethodGet, summary, waiter, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 下单使 dashboard 失效
	s.createOrder(t, "")
	rec = s.do(t, http.MethodGet, summary, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get(headerCache))
	res := decode[struct {
		OrdersByStatus map[string]int `json:"orders_by_status"`
	}](t, rec)
	assert.Equal(t, 1, res.Result.OrdersByStatus["pending"])
}

func TestCachedGET_Analytics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/analytics/api/v1/sales", cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 错误结果不缓存
	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodGet, "/analytics/api/v1/sales?from=2026-13-01", admin, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "MISS", rec.Header().Get(headerCache))
	}

	rec = s.do(t, http.MethodGet, "/analytics/api/v1/sales?top=5", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodGet, "/analytics/api/v1/sales?top=5", admin, nil)
	assert.Equal(t, "HIT", rec.Header().Get(headerCache))

	// 不同 query 是不同的 key
	rec = s.do(t, http.MethodGet, "/analytics/api/v1/sales?top=3", admin, nil)
	assert.Equal(t, "MISS", rec.Header().Get(headerCache))

	rec = s.do(t, http.MethodPost, "/analytics/api/v1/sales", admin, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCachedGET_ScopedByBranch(t *testing.T) {
	c := cache.New(cache.NewLRUStore(10), zap.NewNop())
	var calls int32
	h := CachedGET(c, cache.PrefixDashboard, domain.OpViewDashboard, time.Minute, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, Ok(r.Header.Get(HeaderBranchID)))
	})

	get := func(branch string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/dashboard/api/v1/summary", nil)
		setIdentity(req, &domain.Actor{UserID: "u1", TenantID: "t1", BranchID: branch, Role: domain.RoleAdmin})
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	assert.Equal(t, "b1", decode[string](t, get("b1")).Result)
	assert.Equal(t, "b2", decode[string](t, get("b2")).Result)
	assert.Equal(t, "b1", decode[string](t, get("b1")).Result)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	c.Invalidate(context.Background(), domain.Scope{TenantID: "t1", BranchID: "b1"}, cache.PrefixDashboard)
	get("b1")
	get("b2")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
