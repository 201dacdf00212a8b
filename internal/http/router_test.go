package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fjod/dinecart/internal/graphql"
	"github.com/fjod/dinecart/internal/querycache"
	"github.com/fjod/dinecart/internal/session"
	"github.com/fjod/dinecart/internal/workspace"
	"github.com/fjod/dinecart/pkg/circuitbreaker"
	"github.com/fjod/dinecart/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fake upstream ---

type upstream struct {
	mu      sync.Mutex
	replies map[string]string
	status  int
	calls   map[string]int
	// users answers GetMe by bearer token
	users map[string]string
}

func (u *upstream) on(op, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.replies[op] = body
}

func (u *upstream) count(op string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[op]
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphql.Request
	_ = json.NewDecoder(r.Body).Decode(&req)

	u.mu.Lock()
	u.calls[req.OperationName]++
	body, ok := u.replies[req.OperationName]
	status := u.status
	if req.OperationName == "GetMe" && u.users != nil {
		ok = true
		body = `{"data":null,"errors":[{"message":"Unauthorized","extensions":{"code":"UNAUTHENTICATED"}}]}`
		if id, known := u.users[r.Header.Get("Authorization")]; known {
			body = `{"data":{"me":{"id":"` + id + `","name":"An","email":"an@example.com","role":"customer"}}}`
		}
	}
	u.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		body = `{"errors":[{"message":"unknown operation"}]}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// --- helpers ---

const cartR1 = `{"id":"c1","restaurantId":"R1","items":[{"menuItemId":"m1","quantity":%d,"price":"10","name":"Pho"}],"totalAmount":"%d"}`

func cartJSON(qty int) string {
	return fmt.Sprintf(cartR1, qty, qty*10)
}

const testSecret = "test-secret"

func bearer(t *testing.T, userID string) string {
	t.Helper()
	return bearerSignedWith(t, testSecret, userID)
}

func bearerSignedWith(t *testing.T, key, userID string) string {
	t.Helper()
	claims := session.Claims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return "Bearer " + s
}

func newTestRouter(t *testing.T) (http.Handler, *upstream) {
	t.Helper()
	return newTestRouterWithSecret(t, testSecret)
}

// newTestRouterWithSecret with an empty secret makes the registry confirm
// tokens through GetMe.
func newTestRouterWithSecret(t *testing.T, secret string) (http.Handler, *upstream) {
	t.Helper()
	up := &upstream{replies: map[string]string{}, calls: map[string]int{}}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	client, err := graphql.NewClient(graphql.Options{
		Endpoint: srv.URL,
		Timeout:  time.Second,
		Breaker:  circuitbreaker.Settings{Name: "test", MaxFailures: 100},
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)

	registry := workspace.NewRegistry(client, querycache.NewMemoryCache(time.Minute), workspace.Options{NoticeLimit: 10, TokenSecret: secret}, logger.Nop())
	return NewRouter(RouterConfig{
		Client:         client,
		Registry:       registry,
		RequestTimeout: time.Second,
		Logger:         logger.Nop(),
	}), up
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponseDTO {
	t.Helper()
	var resp CartResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// --- tests ---

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(graphql.HeaderRequestID))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/carts/R1/count", bearer(t, "u1"), nil).Code)
	rec = do(t, h, http.MethodGet, "/health", "", nil)
	var resp HealthResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, HealthResponseDTO{Status: "ok", Workspaces: 1}, resp)
}

func TestCarts_Unauthorized(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/carts/R1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unauthorized", resp.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/carts/R1", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCarts_EmptyCountNoNetwork(t *testing.T) {
	h, up := newTestRouter(t)
	tok := bearer(t, "u1")

	rec := do(t, h, http.MethodGet, "/api/v1/carts/R2/count", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CountResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 0, resp.ItemCount)
	assert.Equal(t, 0, up.count("GetCart"))
}

func TestCarts_AddUpdateClear(t *testing.T) {
	h, up := newTestRouter(t)
	tok := bearer(t, "u1")

	up.on("AddToCart", `{"data":{"addToCart":`+cartJSON(2)+`}}`)
	rec := do(t, h, http.MethodPost, "/api/v1/carts/R1/items", tok, AddItemRequestDTO{MenuItemID: "m1", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	assert.Equal(t, "applied", resp.Outcome)
	assert.Equal(t, 2, resp.ItemCount)
	assert.Equal(t, "20", resp.Cart.TotalAmount.String())

	up.on("UpdateCartItem", `{"data":{"updateCartItem":`+cartJSON(3)+`}}`)
	rec = do(t, h, http.MethodPut, "/api/v1/carts/R1/items/m1", tok, map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeCart(t, rec)
	assert.Equal(t, 3, resp.ItemCount)
	assert.Equal(t, "30", resp.Cart.TotalAmount.String())

	up.on("ClearCart", `{"data":{"clearCart":true}}`)
	rec = do(t, h, http.MethodDelete, "/api/v1/carts/R1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeCart(t, rec)
	assert.Nil(t, resp.Cart)
	assert.Equal(t, 0, resp.ItemCount)

	rec = do(t, h, http.MethodGet, "/api/v1/notifications", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes NotificationsResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&notes))
	var msgs []string
	for _, n := range notes.Notifications {
		msgs = append(msgs, n.Message)
	}
	assert.Equal(t, []string{"Item added to cart", "Cart cleared"}, msgs)
}

func TestCarts_UpdateMissingQuantity(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPut, "/api/v1/carts/R1/items/m1", bearer(t, "u1"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCarts_StaleUpdateReconciles(t *testing.T) {
	h, up := newTestRouter(t)
	tok := bearer(t, "u1")

	up.on("GetCart", `{"data":{"getCart":`+cartJSON(2)+`}}`)
	rec := do(t, h, http.MethodPost, "/api/v1/carts/R1/load", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	up.on("UpdateCartItem", `{"data":null,"errors":[{"message":"Item not found in cart"}]}`)
	up.on("GetCart", `{"data":{"getCart":null}}`)
	rec = do(t, h, http.MethodPut, "/api/v1/carts/R1/items/m1", tok, map[string]int{"quantity": 5})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeCart(t, rec)
	assert.Equal(t, "reconciled", resp.Outcome)
	assert.Nil(t, resp.Cart)
	assert.Equal(t, 2, up.count("GetCart"))
}

func TestCarts_UpstreamDown(t *testing.T) {
	h, up := newTestRouter(t)
	up.status = http.StatusServiceUnavailable

	rec := do(t, h, http.MethodPost, "/api/v1/carts/R1/items", bearer(t, "u1"), AddItemRequestDTO{MenuItemID: "m1"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Network error. Please check your connection.", resp.Error)
}

func TestCheckout_PlaceOrder(t *testing.T) {
	h, up := newTestRouter(t)
	tok := bearer(t, "u1")

	up.on("AddToCart", `{"data":{"addToCart":`+cartJSON(1)+`}}`)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/carts/R1/items", tok, AddItemRequestDTO{MenuItemID: "m1"}).Code)

	up.on("CreateOrder", `{"data":{"createOrder":{"id":"o1","restaurantId":"R1","items":[],"totalAmount":"10","status":"PENDING"}}}`)
	up.on("GetCart", `{"data":{"getCart":null}}`)
	rec := do(t, h, http.MethodPost, "/api/v1/checkout/R1", tok, PlaceOrderRequestDTO{DeliveryAddress: "12 Main St"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/carts/R1", tok, nil)
	resp := decodeCart(t, rec)
	assert.Nil(t, resp.Cart)
	assert.Equal(t, 0, resp.ItemCount)
}

func TestCheckout_MissingAddress(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/v1/checkout/R1", bearer(t, "u1"), PlaceOrderRequestDTO{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_GetAndCancel(t *testing.T) {
	h, up := newTestRouter(t)
	tok := bearer(t, "u1")

	up.on("GetOrderById", `{"data":{"getOrderById":{"id":"o1","status":"PREPARING","items":[],"totalAmount":"10"}}}`)
	rec := do(t, h, http.MethodGet, "/api/v1/orders/o1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	up.on("CancelOrder", `{"data":{"cancelOrder":{"id":"o1","status":"CANCELLED","items":[],"totalAmount":"10"}}}`)
	rec = do(t, h, http.MethodPost, "/api/v1/orders/o1/cancel", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var order map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&order))
	assert.Equal(t, "CANCELLED", order["status"])
}

func TestSession_LoginAndLogout(t *testing.T) {
	h, up := newTestRouter(t)
	tok := bearer(t, "u1")

	up.on("LoginUser", `{"data":{"loginUser":{"token":"`+strings.TrimPrefix(tok, "Bearer ")+`","user":{"id":"u1","name":"An","email":"an@example.com","role":"customer"}}}}`)
	rec := do(t, h, http.MethodPost, "/api/v1/session/login", "", LoginRequestDTO{Email: "an@example.com", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/session/logout", tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSession_LoginRejected(t *testing.T) {
	h, up := newTestRouter(t)
	up.on("LoginUser", `{"data":null,"errors":[{"message":"Invalid credentials"}]}`)

	rec := do(t, h, http.MethodPost, "/api/v1/session/login", "", LoginRequestDTO{Email: "an@example.com", Password: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/session/login", "", LoginRequestDTO{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_ForgedSignatureRejected(t *testing.T) {
	h, up := newTestRouter(t)
	victim := bearer(t, "u1")

	up.on("GetCart", `{"data":{"getCart":`+cartJSON(2)+`}}`)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/carts/R1/load", victim, nil).Code)

	forged := bearerSignedWith(t, "attacker-key", "u1")
	for _, path := range []string{"/api/v1/carts/R1", "/api/v1/carts/R1/count", "/api/v1/notifications"} {
		rec := do(t, h, http.MethodGet, path, forged, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "m1", path)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/carts/R1", victim, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeCart(t, rec).ItemCount)
}

func TestSession_UnverifiedTokenConfirmedByAPI(t *testing.T) {
	h, up := newTestRouterWithSecret(t, "")
	victim := bearerSignedWith(t, "server-key", "u1")
	up.users = map[string]string{victim: "u1"}

	up.on("GetCart", `{"data":{"getCart":`+cartJSON(2)+`}}`)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/carts/R1/load", victim, nil).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/carts/R1", victim, nil).Code)
	assert.Equal(t, 1, up.count("GetMe"), "a known token is confirmed once")

	forged := bearerSignedWith(t, "attacker-key", "u1")
	rec := do(t, h, http.MethodGet, "/api/v1/carts/R1", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "m1")

	// the API knows the token but for another user
	other := bearerSignedWith(t, "server-key-2", "u1")
	up.users[other] = "u2"
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/v1/carts/R1", other, nil).Code)

	rec = do(t, h, http.MethodGet, "/api/v1/carts/R1", victim, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeCart(t, rec).ItemCount)
}

func TestSession_ConfirmUpstreamDown(t *testing.T) {
	h, up := newTestRouterWithSecret(t, "")
	up.status = http.StatusServiceUnavailable

	rec := do(t, h, http.MethodGet, "/api/v1/carts/R1", bearer(t, "u1"), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSession_RegisterAndMe(t *testing.T) {
	h, up := newTestRouter(t)
	tok := bearer(t, "u2")

	up.on("RegisterUser", `{"data":{"registerUser":{"token":"`+strings.TrimPrefix(tok, "Bearer ")+`","user":{"id":"u2","name":"Bo","email":"bo@example.com","role":"customer"}}}}`)
	rec := do(t, h, http.MethodPost, "/api/v1/session/register", "", RegisterRequestDTO{Name: "Bo", Email: "bo@example.com", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)

	up.on("GetMe", `{"data":{"me":{"id":"u2","name":"Bo","email":"bo@example.com","role":"customer"}}}`)
	rec = do(t, h, http.MethodGet, "/api/v1/session/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "u2", user["id"])
}

func TestSession_RegisterRejected(t *testing.T) {
	h, up := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/session/register", "", RegisterRequestDTO{Email: "bo@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	up.on("RegisterUser", `{"data":null,"errors":[{"message":"User already exists","extensions":{"code":"BAD_USER_INPUT"}}]}`)
	rec = do(t, h, http.MethodPost, "/api/v1/session/register", "", RegisterRequestDTO{Name: "Bo", Email: "bo@example.com", Password: "pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "User already exists", resp.Error)
}

func TestOrders_List(t *testing.T) {
	h, up := newTestRouter(t)
	tok := bearer(t, "u1")

	up.on("GetUserOrders", `{"data":{"getUserOrders":[{"id":"o2","status":"DELIVERED","items":[],"totalAmount":"15"},{"id":"o1","status":"CANCELLED","items":[],"totalAmount":"10"}]}}`)
	rec := do(t, h, http.MethodGet, "/api/v1/orders?limit=10", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OrdersResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Orders, 2)
	assert.Equal(t, "o2", resp.Orders[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/orders?limit=ten", tok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/orders?offset=-1", tok, nil).Code)
}
