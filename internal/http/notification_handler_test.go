package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notificationListJSON struct {
	Items []struct {
		NotificationID string `json:"notification_id"`
		Type           string `json:"type"`
		TargetRole     string `json:"target_role"`
	} `json:"items"`
	Total       int `json:"total"`
	UnreadCount int `json:"unread_count"`
}

func TestNotificationRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/notification/api/v1/notifications/offers", waiter, map[string]string{"title": "x", "message": "y"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/notification/api/v1/notifications/offers", admin, map[string]string{
		"title": "Happy hour", "message": "20% off drinks", "target_role": "waiter",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// 下单会通知后厨
	s.createOrder(t, "")

	rec = s.do(t, http.MethodGet, "/notification/api/v1/notifications?unread_only=true", kitchen, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kitchenList := decode[notificationListJSON](t, rec).Result
	require.Equal(t, 1, kitchenList.Total)
	assert.Equal(t, "new_order", kitchenList.Items[0].Type)

	rec = s.do(t, http.MethodGet, "/notification/api/v1/notifications", waiter, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	waiterList := decode[notificationListJSON](t, rec).Result
	require.Equal(t, 1, waiterList.Total)
	assert.Equal(t, "offer", waiterList.Items[0].Type)
	assert.Equal(t, 1, waiterList.UnreadCount)

	rec = s.do(t, http.MethodPost, "/notification/api/v1/notifications/"+waiterList.Items[0].NotificationID+"/read", waiter, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/notification/api/v1/notifications", waiter, nil)
	assert.Equal(t, 0, decode[notificationListJSON](t, rec).Result.UnreadCount)

	rec = s.do(t, http.MethodPost, "/notification/api/v1/notifications/read-all", kitchen, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"marked":1`)

	rec = s.do(t, http.MethodPost, "/notification/api/v1/notifications/missing/read", waiter, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
