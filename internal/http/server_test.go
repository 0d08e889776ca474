// README: End-to-end API tests over the full router with stubbed sessions.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"cartpool/internal/modules/catalog"
	"cartpool/internal/modules/lead"
	"cartpool/internal/modules/market"
	"cartpool/internal/modules/perm"
	"cartpool/internal/modules/session"
	"cartpool/internal/modules/users"
	"cartpool/internal/timeadj"
	"cartpool/internal/types"
)

// stubSessions keeps tokens in memory so tests need no Redis.
type stubSessions struct {
	mu     sync.Mutex
	nextID int
	tokens map[string]types.UserID
}

func newStubSessions() *stubSessions {
	return &stubSessions{tokens: make(map[string]types.UserID)}
}

func (s *stubSessions) Create(_ context.Context, userID types.UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	token := fmt.Sprintf("token-%d", s.nextID)
	s.tokens[token] = userID
	return token, nil
}

func (s *stubSessions) Resolve(_ context.Context, token string) (types.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.tokens[token]
	if !ok {
		return 0, session.ErrNoSession
	}
	return uid, nil
}

func (s *stubSessions) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

type testEnv struct {
	server  *httptest.Server
	tokens  map[string]string // login -> session token
	userIDs map[string]types.UserID
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	log := zerolog.Nop()
	store := market.NewStore(log)
	dir := users.NewDirectory()
	for i, u := range []struct{ login, first, last string }{
		{"alice", "Alice", "Meyer"},
		{"bob", "Bob", "Krause"},
		{"carol", "Carol", "Schulz"},
	} {
		err := dir.Add(users.Profile{
			ID:        types.UserID(i + 1),
			Login:     u.login,
			FirstName: u.first,
			LastName:  u.last,
			Email:     u.login + "@example.com",
			Timezone:  "Europe/Berlin",
		}, u.login+"-pw")
		if err != nil {
			t.Fatalf("seed user %s: %v", u.login, err)
		}
	}

	deps := ServerDeps{
		Store:        store,
		Catalog:      catalog.New(),
		Users:        dir,
		Sessions:     newStubSessions(),
		Leads:        lead.NewStore(log),
		Perm:         perm.NewChecker(store),
		TimeAdj:      timeadj.New(),
		MinBasketSum: 13.0,
		Log:          log,
	}
	srv := httptest.NewServer(NewServer(deps).Routes())
	t.Cleanup(srv.Close)

	env := &testEnv{
		server:  srv,
		tokens:  make(map[string]string),
		userIDs: map[string]types.UserID{"alice": 1, "bob": 2, "carol": 3},
	}
	for login := range env.userIDs {
		env.tokens[login] = env.login(t, login, login+"-pw")
	}
	return env
}

func (e *testEnv) login(t *testing.T, login, password string) string {
	t.Helper()
	body := e.do(t, "", http.StatusOK, "POST", "/api/v1/auth/login",
		map[string]any{"login": login, "password": password})
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("no token in login response: %v", body)
	}
	return token
}

// do issues a request as the given user (login name, empty for
// anonymous), asserts the status and decodes the JSON body.
func (e *testEnv) do(t *testing.T, as string, wantStatus int, method, path string, payload any) map[string]any {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[as])
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s = %d, want %d (body: %v)", method, path, resp.StatusCode, wantStatus, decoded)
	}
	return decoded
}

func validRide() map[string]any {
	return map[string]any{
		"plz":           10115,
		"delivery_time": "2031-05-11T18:00:00Z",
		"max_weight":    15.0,
	}
}

func validOrder(rideID float64) map[string]any {
	return map[string]any{
		"ride_id": rideID,
		"items": []map[string]any{
			{"product_id": 13, "amount": 2}, // 2 * 5.79
			{"product_id": 16, "amount": 1}, // 7.49
		},
		"delivery_address": map[string]any{
			"street": "Torstr.", "house_number": "12",
			"city": "Berlin", "plz": 10119, "country": "Germany",
		},
	}
}

func TestFullWorkflow(t *testing.T) {
	env := setupEnv(t)

	// alice offers a ride
	body := env.do(t, "alice", http.StatusCreated, "POST", "/api/v1/rides", validRide())
	rideID := body["ride_id"].(float64)

	// bob places an order against it
	body = env.do(t, "bob", http.StatusCreated, "POST", "/api/v1/orders", validOrder(rideID))
	orderID := body["order_id"].(float64)
	wantSum := 2*5.79 + 7.49
	sum := body["sum"].(float64)
	if math.Abs(sum-wantSum) > 1e-9 {
		t.Fatalf("sum = %f, want %f", sum, wantSum)
	}
	if earning := body["earning"].(float64); math.Abs(earning-(sum/1.30)*0.15) > 1e-9 {
		t.Fatalf("earning = %f", earning)
	}

	// alice sees the pending request
	body = env.do(t, "alice", http.StatusOK, "GET", fmt.Sprintf("/api/v1/rides/%.0f/requests", rideID), nil)
	requests := body["requests"].([]any)
	if len(requests) != 1 {
		t.Fatalf("requests = %v", requests)
	}

	// alice accepts, delivers; bob rates
	env.do(t, "alice", http.StatusOK, "POST", fmt.Sprintf("/api/v1/orders/%.0f/accept", orderID), nil)
	env.do(t, "alice", http.StatusOK, "POST", fmt.Sprintf("/api/v1/orders/%.0f/delivered", orderID), nil)
	env.do(t, "bob", http.StatusOK, "POST", fmt.Sprintf("/api/v1/orders/%.0f/rating", orderID), map[string]any{"stars": 5})

	// the ride is closed now
	body = env.do(t, "alice", http.StatusOK, "GET", fmt.Sprintf("/api/v1/rides/%.0f", rideID), nil)
	if body["is_open"].(bool) {
		t.Fatal("ride must be closed after delivery")
	}
	if body["resolution"].(string) != "expired_or_completed" {
		t.Fatalf("resolution = %v", body["resolution"])
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupEnv(t)

	env.do(t, "", http.StatusUnauthorized, "POST", "/api/v1/rides", validRide())
	env.do(t, "", http.StatusUnauthorized, "GET", "/api/v1/products", nil)

	// login with bad credentials
	env.do(t, "", http.StatusUnauthorized, "POST", "/api/v1/auth/login",
		map[string]any{"login": "alice", "password": "wrong"})

	// logout invalidates the token
	token := env.login(t, "carol", "carol-pw")
	env.tokens["carol"] = token
	env.do(t, "carol", http.StatusOK, "POST", "/api/v1/auth/logout", nil)
	env.do(t, "carol", http.StatusUnauthorized, "GET", "/api/v1/products", nil)
}

func TestPermissionRules(t *testing.T) {
	env := setupEnv(t)

	body := env.do(t, "alice", http.StatusCreated, "POST", "/api/v1/rides", validRide())
	rideID := body["ride_id"].(float64)
	body = env.do(t, "bob", http.StatusCreated, "POST", "/api/v1/orders", validOrder(rideID))
	orderID := body["order_id"].(float64)

	// bob may not inspect or cancel alice's ride
	env.do(t, "bob", http.StatusForbidden, "GET", fmt.Sprintf("/api/v1/rides/%.0f", rideID), nil)
	env.do(t, "bob", http.StatusForbidden, "POST", fmt.Sprintf("/api/v1/rides/%.0f/cancel", rideID), nil)
	env.do(t, "bob", http.StatusForbidden, "GET", fmt.Sprintf("/api/v1/rides/%.0f/requests", rideID), nil)

	// bob may not accept his own order, carol may not rate it
	env.do(t, "bob", http.StatusForbidden, "POST", fmt.Sprintf("/api/v1/orders/%.0f/accept", orderID), nil)
	env.do(t, "carol", http.StatusForbidden, "POST", fmt.Sprintf("/api/v1/orders/%.0f/rating", orderID), map[string]any{"stars": 3})
}

func TestOrderValidation(t *testing.T) {
	env := setupEnv(t)

	body := env.do(t, "alice", http.StatusCreated, "POST", "/api/v1/rides", validRide())
	rideID := body["ride_id"].(float64)

	// unknown product
	order := validOrder(rideID)
	order["items"] = []map[string]any{{"product_id": 99, "amount": 1}}
	resp := env.do(t, "bob", http.StatusBadRequest, "POST", "/api/v1/orders", order)
	if resp["error"].(string) != "invalid product item id 99" {
		t.Fatalf("error = %v", resp["error"])
	}

	// basket below the minimum (one cucumber)
	order = validOrder(rideID)
	order["items"] = []map[string]any{{"product_id": 32, "amount": 1}}
	resp = env.do(t, "bob", http.StatusBadRequest, "POST", "/api/v1/orders", order)
	if resp["error"].(string) != "basket size is smaller than minimal size (0.49 < 13.00)" {
		t.Fatalf("error = %v", resp["error"])
	}

	// unknown ride
	env.do(t, "bob", http.StatusNotFound, "POST", "/api/v1/orders", validOrder(99999))

	// ordering against your own ride
	env.do(t, "alice", http.StatusConflict, "POST", "/api/v1/orders", validOrder(rideID))
}

func TestRideValidation(t *testing.T) {
	env := setupEnv(t)

	ride := validRide()
	ride["delivery_time"] = "2020-01-01T12:00:00Z"
	env.do(t, "alice", http.StatusBadRequest, "POST", "/api/v1/rides", ride)

	ride = validRide()
	ride["max_weight"] = 0
	env.do(t, "alice", http.StatusBadRequest, "POST", "/api/v1/rides", ride)
}

func TestRatingValidation(t *testing.T) {
	env := setupEnv(t)

	body := env.do(t, "alice", http.StatusCreated, "POST", "/api/v1/rides", validRide())
	rideID := body["ride_id"].(float64)
	body = env.do(t, "bob", http.StatusCreated, "POST", "/api/v1/orders", validOrder(rideID))
	orderID := body["order_id"].(float64)

	env.do(t, "bob", http.StatusBadRequest, "POST", fmt.Sprintf("/api/v1/orders/%.0f/rating", orderID), map[string]any{"stars": 0})
	env.do(t, "bob", http.StatusBadRequest, "POST", fmt.Sprintf("/api/v1/orders/%.0f/rating", orderID), map[string]any{"stars": 6})

	// valid stars but wrong state
	resp := env.do(t, "bob", http.StatusConflict, "POST", fmt.Sprintf("/api/v1/orders/%.0f/rating", orderID), map[string]any{"stars": 4})
	if resp["error"] == nil {
		t.Fatal("expected error body")
	}
}

func TestProductsAndShoppingList(t *testing.T) {
	env := setupEnv(t)

	body := env.do(t, "alice", http.StatusOK, "GET", "/api/v1/products", nil)
	products := body["products"].([]any)
	if len(products) != 27 {
		t.Fatalf("products = %d, want 27", len(products))
	}

	rideBody := env.do(t, "alice", http.StatusCreated, "POST", "/api/v1/rides", validRide())
	rideID := rideBody["ride_id"].(float64)
	orderBody := env.do(t, "bob", http.StatusCreated, "POST", "/api/v1/orders", validOrder(rideID))

	// the shopping list id precedes the order id in the shared sequence
	listID := orderBody["order_id"].(float64) - 1
	body = env.do(t, "bob", http.StatusOK, "GET", fmt.Sprintf("/api/v1/shopping-lists/%.0f", listID), nil)
	if price := body["price"].(float64); math.Abs(price-(2*5.79+7.49)) > 1e-9 {
		t.Fatalf("price = %v", price)
	}
	items := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %v", items)
	}

	env.do(t, "bob", http.StatusForbidden, "GET", "/api/v1/shopping-lists/9999", nil)
}

func TestDashboards(t *testing.T) {
	env := setupEnv(t)

	body := env.do(t, "alice", http.StatusCreated, "POST", "/api/v1/rides", validRide())
	rideID := body["ride_id"].(float64)
	env.do(t, "bob", http.StatusCreated, "POST", "/api/v1/orders", validOrder(rideID))

	// bob sees the ride nearby and his order
	body = env.do(t, "bob", http.StatusOK, "GET", "/api/v1/dash/user?plz=10245", nil)
	if len(body["rides"].([]any)) != 1 || len(body["orders"].([]any)) != 1 {
		t.Fatalf("user dash = %v", body)
	}

	// far away there is nothing on offer
	body = env.do(t, "bob", http.StatusOK, "GET", "/api/v1/dash/user?plz=80331", nil)
	if body["rides"] != nil && len(body["rides"].([]any)) != 0 {
		t.Fatalf("far dash rides = %v", body["rides"])
	}

	// alice sees her ride, no accepted order yet
	body = env.do(t, "alice", http.StatusOK, "GET", "/api/v1/dash/shopper", nil)
	if len(body["rides"].([]any)) != 1 {
		t.Fatalf("shopper dash = %v", body)
	}

	env.do(t, "bob", http.StatusBadRequest, "GET", "/api/v1/dash/user", nil)
}

func TestLeadRegistration(t *testing.T) {
	env := setupEnv(t)

	env.do(t, "", http.StatusCreated, "POST", "/api/v1/leads", map[string]any{
		"first_name": "Erik", "last_name": "Lang", "email": "erik@example.com",
	})
	env.do(t, "", http.StatusBadRequest, "POST", "/api/v1/leads", map[string]any{
		"first_name": "Erik", "last_name": "Lang", "email": "not-an-email",
	})
}

func TestHealthz(t *testing.T) {
	env := setupEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
}
