package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"owl-restaurant/internal/cache"
	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
	"owl-restaurant/internal/sequence"
	"owl-restaurant/internal/service"
)

const testWebhookSecret = "whsec_http"

type testServer struct {
	router *Router
	hub    *realtime.Hub
	orders *repository.MemoryOrdersRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	hub := realtime.NewHub(logger)
	orders := repository.NewMemoryOrdersRepo()
	c := cache.New(cache.NewLRUStore(100), logger)

	deps := service.Dependencies{
		Orders:        orders,
		Tables:        repository.NewMemoryTablesRepo(),
		Payments:      repository.NewMemoryPaymentsRepo(),
		Audits:        repository.NewMemoryPaymentAuditsRepo(),
		Notifications: repository.NewMemoryNotificationsRepo(),
		Sequence:      sequence.NewMemoryGenerator(),
		Cache:         c,
		Bus:           realtime.NewBus(logger, hub),
		Effects:       service.NewSyncEffectRunner(logger),
		Logger:        logger,
	}
	notifySvc := service.NewNotificationService(deps, 0)
	orderSvc := service.NewOrderService(deps, notifySvc)
	tableSvc := service.NewTableService(deps, notifySvc, 15*time.Minute)
	paymentSvc := service.NewPaymentService(deps, notifySvc, nil, testWebhookSecret)

	router := NewRouter(logger)
	router.RegisterOrderRoutes(NewOrderHandler(orderSvc, service.NewOrderExporter(deps), logger))
	router.RegisterPaymentRoutes(NewPaymentHandler(paymentSvc, logger))
	router.RegisterTableRoutes(NewTableHandler(tableSvc, logger))
	router.RegisterNotificationRoutes(NewNotificationHandler(notifySvc, logger))
	router.RegisterDashboardRoutes(NewDashboardHandler(service.NewDashboardService(deps), logger), c, 15*time.Second, 120*time.Second)
	router.RegisterRealtimeRoutes(NewRealtimeHandler(hub, logger))
	router.RegisterDoctorRoutes(NewDoctorHandler(nil, nil, logger))
	return &testServer{router: router, hub: hub, orders: orders}
}

func staff(role domain.Role) *domain.Actor {
	return &domain.Actor{UserID: "u-" + string(role), TenantID: "t1", BranchID: "b1", Role: role}
}

var (
	admin   = staff(domain.RoleAdmin)
	waiter  = staff(domain.RoleWaiter)
	kitchen = staff(domain.RoleKitchen)
	cashier = staff(domain.RoleCashier)
)

func setIdentity(r *http.Request, a *domain.Actor) {
	if a == nil {
		return
	}
	r.Header.Set(HeaderUserID, a.UserID)
	r.Header.Set(HeaderTenantID, a.TenantID)
	r.Header.Set(HeaderBranchID, a.BranchID)
	r.Header.Set(HeaderUserRole, string(a.Role))
}

func (s *testServer) do(t *testing.T, method, path string, a *domain.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	setIdentity(req, a)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var out Result[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type orderJSON struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	TableID       *string         `json:"table_id"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Final         decimal.Decimal `json:"final"`
	Items         []struct {
		ItemID string `json:"item_id"`
		Status string `json:"status"`
	} `json:"items"`
}

type tableJSON struct {
	TableID string `json:"table_id"`
	Status  string `json:"status"`
}

func (s *testServer) createTable(t *testing.T, number string) tableJSON {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/table/api/v1/tables", admin, map[string]any{"number": number, "capacity": 4})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[tableJSON](t, rec).Result
}

// 两个条目合计 500，税率 5%，应付 525
func orderBody(tableID string) map[string]any {
	body := map[string]any{
		"tax_rate": 5,
		"items": []map[string]any{
			{"menu_item_id": "m-curry", "name": "Paneer Curry", "price": "150", "quantity": 2},
			{"menu_item_id": "m-biryani", "name": "Biryani", "price": 200, "quantity": 1},
		},
	}
	if tableID != "" {
		body["order_type"] = "dine_in"
		body["table_id"] = tableID
	} else {
		body["order_type"] = "takeaway"
	}
	return body
}

func (s *testServer) createOrder(t *testing.T, tableID string) orderJSON {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/order/api/v1/orders", waiter, orderBody(tableID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[orderJSON](t, rec).Result
}

func (s *testServer) setStatus(t *testing.T, a *domain.Actor, orderID, status string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPut, "/order/api/v1/orders/"+orderID+"/status", a, map[string]string{"status": status})
}
