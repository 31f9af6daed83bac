package httpapi

import (
	"bytes"
	"net/http"
	"time"

	"owl-restaurant/internal/cache"
	"owl-restaurant/internal/domain"
)

// 缓存命中标记
const headerCache = "X-Cache"

// captureWriter 记录状态码与响应体，只有 200 的结果写入缓存
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// CachedGET 聚合查询的读缓存：key = prefix + tenant/branch + path + query
// 先鉴权再查缓存，key 不含角色，因此同一 branch 内有权限的角色共享结果
func CachedGET(c *cache.Cache, prefix string, op domain.Operation, ttl time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if err := domain.Authorize(op, actor.Role); err != nil {
			writeJSON(w, statusFor(err), Fail(domain.MessageOf(err)))
			return
		}
		if c == nil || ttl <= 0 {
			next(w, r)
			return
		}

		key := cache.Key(prefix, actor.Scope(), r.URL.Path, r.URL.Query())
		if body, hit := c.Get(r.Context(), key); hit {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(headerCache, "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}

		w.Header().Set(headerCache, "MISS")
		cw := &captureWriter{ResponseWriter: w}
		next(cw, r)
		if cw.status == http.StatusOK && cw.buf.Len() > 0 {
			c.Set(r.Context(), key, cw.buf.Bytes(), ttl)
		}
	}
}
