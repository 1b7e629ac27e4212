package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addOrder(t *testing.T, router http.Handler, token, amount, number, date string) OrderResponse {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/orders/", token, OrderUpsertRequest{
		Amount:      amount,
		OrderNumber: number,
		Date:        date,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func listMonth(t *testing.T, router http.Handler, token, month string) MonthViewResponse {
	t.Helper()

	rec := doJSON(t, router, http.MethodGet, "/orders/?month="+month, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp MonthViewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestOrdersRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	for _, req := range []struct {
		method string
		target string
	}{
		{http.MethodGet, "/orders/"},
		{http.MethodPost, "/orders/"},
		{http.MethodPut, "/orders/1"},
		{http.MethodDelete, "/orders/1"},
		{http.MethodGet, "/orders/export?month=2024-03"},
	} {
		rec := doJSON(t, router, req.method, req.target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", req.method, req.target)
	}
}

func TestAddAndListOrders(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "s3cret")

	created := addOrder(t, router, token, "150.00", "A-100", "2024-03-05")
	assert.Equal(t, "150.00", created.Amount)
	assert.Equal(t, int64(15000), created.AmountCents)
	assert.Equal(t, "2024-03", created.Month)
	assert.Equal(t, "2024-03-05", created.Date)

	addOrder(t, router, token, "0.99", "B-7", "2024-03-01")

	view := listMonth(t, router, token, "2024-03")
	require.Len(t, view.Items, 2)
	// Date ascending.
	assert.Equal(t, "B-7", view.Items[0].OrderNumber)
	assert.Equal(t, "A-100", view.Items[1].OrderNumber)
	assert.Equal(t, "150.99", view.Total)
	assert.Equal(t, []string{"2024-03"}, view.Months)
}

func TestAddOrderValidation(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "s3cret")

	for name, req := range map[string]OrderUpsertRequest{
		"bad amount":      {Amount: "abc", OrderNumber: "A-1", Date: "2024-03-05"},
		"negative amount": {Amount: "-5", OrderNumber: "A-1", Date: "2024-03-05"},
		"blank number":    {Amount: "10", OrderNumber: "  ", Date: "2024-03-05"},
		"bad date":        {Amount: "10", OrderNumber: "A-1", Date: "05.03.2024"},
		"no date":         {Amount: "10", OrderNumber: "A-1"},
	} {
		rec := doJSON(t, router, http.MethodPost, "/orders/", token, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestDuplicateOrderNumberConflict(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "s3cret")

	addOrder(t, router, token, "150", "A-100", "2024-03-05")

	rec := doJSON(t, router, http.MethodPost, "/orders/", token, OrderUpsertRequest{
		Amount: "200", OrderNumber: "A-100", Date: "2024-03-20",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Same number in another month is allowed.
	addOrder(t, router, token, "200", "A-100", "2024-04-01")

	// And another user may reuse it in the same month.
	other := registerAndLogin(t, router, "bob", "pw")
	addOrder(t, router, other, "200", "A-100", "2024-03-20")
}

func TestEditOrder(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "s3cret")

	created := addOrder(t, router, token, "150", "A-100", "2024-03-05")

	rec := doJSON(t, router, http.MethodPut, fmt.Sprintf("/orders/%d", created.ID), token, OrderUpsertRequest{
		Amount: "175.50", OrderNumber: "A-101", Date: "2024-04-02",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "175.50", updated.Amount)
	assert.Equal(t, "2024-04", updated.Month)

	// The order moved months.
	assert.Empty(t, listMonth(t, router, token, "2024-03").Items)
	assert.Len(t, listMonth(t, router, token, "2024-04").Items, 1)
}

func TestEditOrderConflictsAndNotFound(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "s3cret")

	first := addOrder(t, router, token, "100", "A-1", "2024-03-05")
	second := addOrder(t, router, token, "100", "A-2", "2024-03-06")

	rec := doJSON(t, router, http.MethodPut, fmt.Sprintf("/orders/%d", second.ID), token, OrderUpsertRequest{
		Amount: "100", OrderNumber: "A-1", Date: "2024-03-06",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/orders/9999", token, OrderUpsertRequest{
		Amount: "100", OrderNumber: "A-3", Date: "2024-03-06",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/orders/abc", token, OrderUpsertRequest{
		Amount: "100", OrderNumber: "A-3", Date: "2024-03-06",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Another user cannot touch the order; 404, not 403.
	other := registerAndLogin(t, router, "bob", "pw")
	rec = doJSON(t, router, http.MethodPut, fmt.Sprintf("/orders/%d", first.ID), other, OrderUpsertRequest{
		Amount: "1", OrderNumber: "X", Date: "2024-03-07",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOrder(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "s3cret")

	created := addOrder(t, router, token, "100", "A-1", "2024-03-05")

	other := registerAndLogin(t, router, "bob", "pw")
	rec := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/orders/%d", created.ID), other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/orders/%d", created.ID), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/orders/%d", created.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Empty(t, listMonth(t, router, token, "2024-03").Items)
}

func TestListInvalidMonth(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "s3cret")

	for _, month := range []string{"2024-13", "2024", "march", "2024-3"} {
		rec := doJSON(t, router, http.MethodGet, "/orders/?month="+month, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, month)
	}
}

func TestExportMonth(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "s3cret")

	addOrder(t, router, token, "150", "A-100", "2024-03-05")

	rec := doJSON(t, router, http.MethodGet, "/orders/export?month=2024-03", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="orders_2024-03.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "amount,order_number,date")
	assert.Contains(t, rec.Body.String(), "150.00,A-100,05.03.2024")

	rec = doJSON(t, router, http.MethodGet, "/orders/export", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/orders/export?month=2024-13", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
