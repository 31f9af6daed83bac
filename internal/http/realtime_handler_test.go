package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
)

func TestRealtimeRoute_RequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/realtime/api/v1/ws", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeRoute_ReceivesBranchEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	q := url.Values{"user_id": {"u-kitchen"}, "tenant_id": {"t1"}, "branch_id": {"b1"}, "role": {"kitchen"}}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/api/v1/ws?" + q.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	b1 := domain.Scope{TenantID: "t1", BranchID: "b1"}
	require.Eventually(t, func() bool { return s.hub.ClientCount(b1) == 1 }, time.Second, 10*time.Millisecond)

	o := s.createOrder(t, "")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	seen := map[string]bool{}
	for !seen[realtime.EventNewOrder] || !seen[realtime.EventNewNotification] {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev struct {
			Name string          `json:"event"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &ev))
		seen[ev.Name] = true
		if ev.Name == realtime.EventNewOrder {
			assert.Contains(t, string(ev.Data), o.OrderID)
		}
	}
}
