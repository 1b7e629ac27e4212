package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/orderledger/apiserver/internal/services"
	"github.com/orderledger/apiserver/internal/store"
	"github.com/orderledger/apiserver/types"
	"github.com/stretchr/testify/require"
)

// In-memory repositories mirroring the SQL repositories' semantics, so the
// full router can be exercised without a database.

type memUserRepo struct {
	nextID int
	users  map[int]types.User
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Username == user.Username {
			return types.User{}, store.ErrUsernameTaken
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return user, nil
}

type memSessionRepo struct {
	sessions map[string]types.Session
}

func (r *memSessionRepo) Create(ctx context.Context, userID int, token string, ttl time.Duration) (types.Session, error) {
	session := types.Session{Token: token, UserID: userID, ExpiresAt: time.Now().Add(ttl)}
	r.sessions[token] = session
	return session, nil
}

func (r *memSessionRepo) Get(ctx context.Context, token string) (types.Session, error) {
	session, ok := r.sessions[token]
	if !ok || session.Expired(time.Now()) {
		return types.Session{}, store.ErrNotFound
	}
	return session, nil
}

func (r *memSessionRepo) Delete(ctx context.Context, token string) error {
	if _, ok := r.sessions[token]; !ok {
		return store.ErrNotFound
	}
	delete(r.sessions, token)
	return nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context) error {
	now := time.Now()
	for token, session := range r.sessions {
		if session.Expired(now) {
			delete(r.sessions, token)
		}
	}
	return nil
}

type memOrderRepo struct {
	nextID int
	orders map[int]types.Order
}

func (r *memOrderRepo) ListMonth(ctx context.Context, userID int, month string) ([]types.Order, error) {
	result := make([]types.Order, 0)
	for _, order := range r.orders {
		if order.UserID == userID && order.Month == month {
			result = append(result, order)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *memOrderRepo) Months(ctx context.Context, userID int) ([]string, error) {
	seen := make(map[string]bool)
	for _, order := range r.orders {
		if order.UserID == userID {
			seen[order.Month] = true
		}
	}
	months := make([]string, 0, len(seen))
	for month := range seen {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months, nil
}

func (r *memOrderRepo) MonthTotal(ctx context.Context, userID int, month string) (int64, error) {
	var total int64
	for _, order := range r.orders {
		if order.UserID == userID && order.Month == month {
			total += order.AmountCents
		}
	}
	return total, nil
}

func (r *memOrderRepo) Create(ctx context.Context, order types.Order) (types.Order, error) {
	if r.numberTaken(order.UserID, order.Month, order.OrderNumber, 0) {
		return types.Order{}, store.ErrDuplicateOrderNumber
	}
	r.nextID++
	order.ID = r.nextID
	r.orders[order.ID] = order
	return order, nil
}

func (r *memOrderRepo) Update(ctx context.Context, order types.Order) (types.Order, error) {
	existing, ok := r.orders[order.ID]
	if !ok || existing.UserID != order.UserID {
		return types.Order{}, store.ErrNotFound
	}
	if r.numberTaken(order.UserID, order.Month, order.OrderNumber, order.ID) {
		return types.Order{}, store.ErrDuplicateOrderNumber
	}
	r.orders[order.ID] = order
	return order, nil
}

func (r *memOrderRepo) Delete(ctx context.Context, userID, id int) error {
	existing, ok := r.orders[id]
	if !ok || existing.UserID != userID {
		return store.ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

func (r *memOrderRepo) numberTaken(userID int, month, orderNumber string, excludeID int) bool {
	for _, order := range r.orders {
		if order.UserID == userID && order.Month == month &&
			order.OrderNumber == orderNumber && order.ID != excludeID {
			return true
		}
	}
	return false
}

// newTestRouter wires the full API surface against in-memory repositories,
// the same way the server does against SQL ones.
func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	return newRouter(t, nil)
}

// newProxiedTestRouter applies the server's middleware chain, including the
// RealIP rewrite of RemoteAddr from proxy headers, in the server's order.
func newProxiedTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	return newRouter(t, []func(http.Handler) http.Handler{
		PeerAddr,
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(60 * time.Second),
	})
}

func newRouter(t *testing.T, middlewares []func(http.Handler) http.Handler) *chi.Mux {
	t.Helper()

	userService := services.NewUserService(&memUserRepo{users: make(map[int]types.User)})
	sessionService := services.NewSessionService(
		&memSessionRepo{sessions: make(map[string]types.Session)}, "test-secret", time.Hour)
	orderRepo := &memOrderRepo{orders: make(map[int]types.Order)}
	orderService := services.NewOrderService(orderRepo, nil)
	exportService := services.NewExportService(orderRepo, nil, nil)

	authHandler := NewAuthHandler(userService, sessionService)

	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, sessionService)
	})
	r.Route("/orders", func(r chi.Router) {
		OrderRouter(r, orderService, exportService, authHandler.RequireAuth)
	})
	return r
}

const loopbackAddr = "127.0.0.1:54321"

func doJSON(t *testing.T, router http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = loopbackAddr
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// doJSONFrom posts a registration from an arbitrary peer address, with
// optional extra headers.
func doJSONFrom(t *testing.T, router http.Handler, remoteAddr string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(data))
	req.RemoteAddr = remoteAddr
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// registerAndLogin creates an account over the API and returns its token.
func registerAndLogin(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/auth/register", "", RegisterRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", LoginRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}
