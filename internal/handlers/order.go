package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/orderledger/apiserver/internal/services"
	"github.com/orderledger/apiserver/internal/store"
	"github.com/orderledger/apiserver/types"
)

// OrderHandler provides HTTP handlers for orders and month exports.
type OrderHandler struct {
	orderService  *services.OrderService
	exportService *services.ExportService
}

// NewOrderHandler constructs a handler with the provided services.
func NewOrderHandler(orderService *services.OrderService, exportService *services.ExportService) *OrderHandler {
	return &OrderHandler{
		orderService:  orderService,
		exportService: exportService,
	}
}

// OrderRouter registers order routes on the given router. All routes
// require an authenticated session.
func OrderRouter(
	r chi.Router,
	orderService *services.OrderService,
	exportService *services.ExportService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewOrderHandler(orderService, exportService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListOrders)
	r.Post("/", handler.AddOrder)
	r.Get("/export", handler.ExportMonth)
	r.Route("/{orderID}", func(r chi.Router) {
		r.Put("/", handler.EditOrder)
		r.Delete("/", handler.DeleteOrder)
	})
}

// ListOrders returns the caller's orders for the requested month, the
// months they have orders in, and the month total. Without a month
// parameter the current calendar month is used.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		month = types.MonthKey(time.Now())
	}
	if !types.ValidMonthKey(month) {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}

	view, err := h.orderService.ListMonth(r.Context(), userID, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	items := make([]OrderResponse, len(view.Orders))
	for i, order := range view.Orders {
		items[i] = newOrderResponse(order)
	}
	writeJSON(w, http.StatusOK, MonthViewResponse{
		Month:  view.Month,
		Items:  items,
		Months: view.Months,
		Total:  types.FormatAmountCents(view.TotalCents),
	})
}

// AddOrder creates a new order for the caller.
func (h *OrderHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := parseOrderPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orderService.Add(r.Context(), userID, req.amountCents, req.orderNumber, req.date)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

// EditOrder overwrites the caller's order.
func (h *OrderHandler) EditOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseOrderPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orderService.Edit(r.Context(), userID, id, req.amountCents, req.orderNumber, req.date)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

// DeleteOrder removes the caller's order.
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orderService.Delete(r.Context(), userID, id); err != nil {
		writeOrderError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportMonth streams the month's orders as a CSV attachment.
func (h *OrderHandler) ExportMonth(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if !types.ValidMonthKey(month) {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}

	filename, data, err := h.exportService.Export(r.Context(), userID, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export orders")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// OrderResponse is the JSON representation of a single order.
type OrderResponse struct {
	ID          int    `json:"id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	OrderNumber string `json:"order_number"`
	Date        string `json:"date"`
	Month       string `json:"month"`
}

// MonthViewResponse is the listing payload for one month.
type MonthViewResponse struct {
	Month  string          `json:"month"`
	Items  []OrderResponse `json:"items"`
	Months []string        `json:"months"`
	Total  string          `json:"total"`
}

type orderPayload struct {
	amountCents int64
	orderNumber string
	date        time.Time
}

// OrderUpsertRequest is the request body for add and edit.
type OrderUpsertRequest struct {
	Amount      string `json:"amount"`
	OrderNumber string `json:"order_number"`
	Date        string `json:"date"`
}

func newOrderResponse(order types.Order) OrderResponse {
	return OrderResponse{
		ID:          order.ID,
		Amount:      types.FormatAmountCents(order.AmountCents),
		AmountCents: order.AmountCents,
		OrderNumber: order.OrderNumber,
		Date:        order.DateString(),
		Month:       order.Month,
	}
}

func parseOrderID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "orderID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid order id")
	}
	return id, nil
}

func parseOrderPayload(r *http.Request) (orderPayload, error) {
	var req OrderUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return orderPayload{}, errors.New("invalid request")
	}

	amountCents, err := types.ParseAmountCents(req.Amount)
	if err != nil {
		return orderPayload{}, errors.New("invalid amount")
	}

	orderNumber := strings.TrimSpace(req.OrderNumber)
	if orderNumber == "" {
		return orderPayload{}, errors.New("order number is required")
	}

	date, err := time.Parse(types.DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		return orderPayload{}, errors.New("invalid date")
	}

	return orderPayload{
		amountCents: amountCents,
		orderNumber: orderNumber,
		date:        date,
	}, nil
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, store.ErrDuplicateOrderNumber):
		writeError(w, http.StatusConflict, "order number already exists in this month")
	case errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, services.ErrEmptyOrderNumber),
		errors.Is(err, services.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "failed to process order")
	}
}
