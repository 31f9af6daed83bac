package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/service"
)

const tablesPath = "/table/api/v1/tables"

// TableHandler 桌台 Handler
type TableHandler struct {
	tables service.TableService
	logger *zap.Logger
}

// NewTableHandler 创建桌台 Handler
func NewTableHandler(tables service.TableService, logger *zap.Logger) *TableHandler {
	return &TableHandler{tables: tables, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *TableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, tablesPath)

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.ListTables(w, r, actor)
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.CreateTable(w, r, actor)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetTable(w, r, actor, parts[0])
	case len(parts) == 1 && r.Method == http.MethodPut:
		h.UpdateTable(w, r, actor, parts[0])
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.TableAction(w, r, actor, parts[0], parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListTables 桌台列表，query: status
func (h *TableHandler) ListTables(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	tables, err := h.tables.ListTables(r.Context(), service.ListTablesRequest{
		Actor:  actor,
		Status: domain.TableStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, h.logger, "ListTables", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tables))
}

// GetTable 桌台详情
func (h *TableHandler) GetTable(w http.ResponseWriter, r *http.Request, actor domain.Actor, tableID string) {
	t, err := h.tables.GetTable(r.Context(), service.GetTableRequest{Actor: actor, TableID: tableID})
	if err != nil {
		writeError(w, h.logger, "GetTable", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(t))
}

type tablePayload struct {
	Number   string `json:"number"`
	Capacity int    `json:"capacity"`
}

// CreateTable 新建桌台
func (h *TableHandler) CreateTable(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var payload tablePayload
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	t, err := h.tables.CreateTable(r.Context(), service.CreateTableRequest{
		Actor: actor, Number: payload.Number, Capacity: payload.Capacity,
	})
	if err != nil {
		writeError(w, h.logger, "CreateTable", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(t))
}

// UpdateTable 修改编号 / 容量
func (h *TableHandler) UpdateTable(w http.ResponseWriter, r *http.Request, actor domain.Actor, tableID string) {
	var payload tablePayload
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	t, err := h.tables.UpdateTable(r.Context(), service.UpdateTableRequest{
		Actor: actor, TableID: tableID, Number: payload.Number, Capacity: payload.Capacity,
	})
	if err != nil {
		writeError(w, h.logger, "UpdateTable", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(t))
}

// TableAction reserve / release / clean / reset
func (h *TableHandler) TableAction(w http.ResponseWriter, r *http.Request, actor domain.Actor, tableID, action string) {
	var fn func(context.Context, service.TableActionRequest) (*domain.Table, error)
	switch action {
	case "reserve":
		fn = h.tables.ReserveTable
	case "release":
		fn = h.tables.ReleaseTable
	case "clean":
		fn = h.tables.CleanTable
	case "reset":
		fn = h.tables.ResetTable
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	t, err := fn(r.Context(), service.TableActionRequest{Actor: actor, TableID: tableID})
	if err != nil {
		writeError(w, h.logger, "TableAction."+action, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(t))
}
