package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"predex/internal/api"
	"predex/internal/exchange"
	"predex/internal/store"

	"github.com/gorilla/websocket"
)

// testEnv holds all the components needed for e2e testing
type testEnv struct {
	server *httptest.Server
	store  *store.Store
	svc    *exchange.Service
	api    *api.Server
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	svc := exchange.New(st)

	// nil staticFS is fine for tests - no frontend needed
	srv := api.NewServer(svc, st, nil)
	ts := httptest.NewServer(srv.Router())

	return &testEnv{
		server: ts,
		store:  st,
		svc:    svc,
		api:    srv,
	}
}

func (e *testEnv) cleanup() {
	e.server.Close()
	e.api.Shutdown()
	e.store.Close()
}

// Helper to make JSON requests
func (e *testEnv) post(path string, body interface{}, token string) (*http.Response, error) {
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", e.server.URL+path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func (e *testEnv) get(path string, token string) (*http.Response, error) {
	req, _ := http.NewRequest("GET", e.server.URL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func (e *testEnv) del(path string, token string) (*http.Response, error) {
	req, _ := http.NewRequest("DELETE", e.server.URL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

// decodeJSON is a helper to decode JSON and fail the test on error
func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
}

// mustStatus fails the test when a response carries the wrong status, and
// includes the body so the failure is diagnosable.
func mustStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body := new(bytes.Buffer)
		body.ReadFrom(resp.Body)
		t.Fatalf("Expected status %d, got %d: %s", want, resp.StatusCode, body.String())
	}
}

// registerUser registers a user and returns auth token and account info
func (e *testEnv) registerUser(t *testing.T, username, password string) (token, userID, accountID string) {
	t.Helper()
	resp, err := e.post("/api/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, "")
	if err != nil {
		t.Fatalf("Register request failed: %v", err)
	}
	defer resp.Body.Close()
	mustStatus(t, resp, http.StatusOK)

	var result map[string]interface{}
	decodeJSON(t, resp, &result)

	token = result["token"].(string)
	userID = result["user_id"].(string)
	accountID = result["account_id"].(string)

	if token == "" || userID == "" || accountID == "" {
		t.Fatal("Missing token, user_id, or account_id in register response")
	}

	return token, userID, accountID
}

// getAccount fetches account info and validates it
func (e *testEnv) getAccount(t *testing.T, token string) map[string]interface{} {
	t.Helper()
	resp, err := e.get("/api/account", token)
	if err != nil {
		t.Fatalf("Get account request failed: %v", err)
	}
	defer resp.Body.Close()
	mustStatus(t, resp, http.StatusOK)

	var account map[string]interface{}
	decodeJSON(t, resp, &account)
	return account
}

func (e *testEnv) balance(t *testing.T, token string) int64 {
	t.Helper()
	return int64(e.getAccount(t, token)["balance"].(float64))
}

// createMarket opens a market with the caller as authority
func (e *testEnv) createMarket(t *testing.T, token string, conversionRate uint64) string {
	t.Helper()
	resp, err := e.post("/api/markets", map[string]interface{}{
		"conversion_rate": conversionRate,
	}, token)
	if err != nil {
		t.Fatalf("Create market request failed: %v", err)
	}
	defer resp.Body.Close()
	mustStatus(t, resp, http.StatusOK)

	var market map[string]interface{}
	decodeJSON(t, resp, &market)
	id := market["id"].(string)
	if id == "" {
		t.Fatal("Missing market id in response")
	}
	return id
}

// submitOrder places an order and returns its id
func (e *testEnv) submitOrder(t *testing.T, token, marketID, side, kind string, price, quantity uint64) string {
	t.Helper()
	resp, err := e.post("/api/orders", map[string]interface{}{
		"market_id": marketID,
		"side":      side,
		"kind":      kind,
		"price":     price,
		"quantity":  quantity,
	}, token)
	if err != nil {
		t.Fatalf("Submit order request failed: %v", err)
	}
	defer resp.Body.Close()
	mustStatus(t, resp, http.StatusOK)

	var order map[string]interface{}
	decodeJSON(t, resp, &order)
	id := order["id"].(string)
	if id == "" {
		t.Fatal("Missing order id in response")
	}
	return id
}

// matchOrders proposes a match between two complementary buys
func (e *testEnv) matchOrders(t *testing.T, marketID, orderIDA, orderIDB string) {
	t.Helper()
	resp, err := e.post("/api/match", map[string]string{
		"market_id":  marketID,
		"order_id_a": orderIDA,
		"order_id_b": orderIDB,
	}, "")
	if err != nil {
		t.Fatalf("Match request failed: %v", err)
	}
	defer resp.Body.Close()
	mustStatus(t, resp, http.StatusOK)
}

// issueShares runs two matched buy pairs so both accounts end up holding
// shares of both sides.
func (e *testEnv) issueShares(t *testing.T, marketID, tokenA, tokenB string, quantity uint64) {
	t.Helper()
	a1 := e.submitOrder(t, tokenA, marketID, "a", "buy", 500_000, quantity)
	b1 := e.submitOrder(t, tokenB, marketID, "b", "buy", 500_000, quantity)
	e.matchOrders(t, marketID, a1, b1)

	a2 := e.submitOrder(t, tokenB, marketID, "a", "buy", 500_000, quantity)
	b2 := e.submitOrder(t, tokenA, marketID, "b", "buy", 500_000, quantity)
	e.matchOrders(t, marketID, a2, b2)
}

func TestE2E_AuthFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	t.Run("Register", func(t *testing.T) {
		token, userID, accountID := env.registerUser(t, "testuser", "testpass123")
		if token == "" || userID == "" || accountID == "" {
			t.Error("Expected token, user_id and account_id in response")
		}
	})

	t.Run("DuplicateRegister", func(t *testing.T) {
		resp, err := env.post("/api/auth/register", map[string]string{
			"username": "testuser",
			"password": "anotherpass",
		}, "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("Expected 409 Conflict, got %d", resp.StatusCode)
		}
	})

	t.Run("Login", func(t *testing.T) {
		resp, err := env.post("/api/auth/login", map[string]string{
			"username": "testuser",
			"password": "testpass123",
		}, "")
		if err != nil {
			t.Fatalf("Login request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var result map[string]interface{}
		decodeJSON(t, resp, &result)
		if result["token"] == nil || result["token"] == "" {
			t.Error("Expected token in response")
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		resp, err := env.post("/api/auth/login", map[string]string{
			"username": "testuser",
			"password": "wrongpass",
		}, "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("Expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		token, _, _ := env.registerUser(t, "logoutuser", "password123")

		resp, err := env.post("/api/auth/logout", nil, token)
		if err != nil {
			t.Fatalf("Logout request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", resp.StatusCode)
		}

		// The token must be dead afterwards.
		resp, err = env.get("/api/account", token)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("Expected 401 after logout, got %d", resp.StatusCode)
		}
	})
}

func TestE2E_InitialAccountState(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	token, _, _ := env.registerUser(t, "newuser", "password123")

	account := env.getAccount(t, token)

	balance := int64(account["balance"].(float64))
	if balance != store.StartingBalance {
		t.Errorf("Expected starting balance %d, got %d", store.StartingBalance, balance)
	}

	positions := account["positions"].([]interface{})
	if len(positions) != 0 {
		t.Errorf("Expected 0 positions initially, got %d", len(positions))
	}
}

func TestE2E_RequiresAuth(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/account"},
		{"GET", "/api/orders"},
		{"POST", "/api/markets"},
		{"POST", "/api/orders"},
		{"DELETE", "/api/orders/some-id"},
		{"POST", "/api/pools"},
		{"POST", "/api/pricepools"},
	}

	for _, p := range paths {
		var resp *http.Response
		var err error
		switch p.method {
		case "GET":
			resp, err = env.get(p.path, "")
		case "POST":
			resp, err = env.post(p.path, map[string]string{}, "")
		case "DELETE":
			resp, err = env.del(p.path, "")
		}
		if err != nil {
			t.Fatalf("%s %s failed: %v", p.method, p.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, resp.StatusCode)
		}
	}
}

func TestE2E_AuthRateLimit(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	// Hammer the login endpoint past the per-IP limit.
	var got429 bool
	for i := 0; i < 30; i++ {
		resp, err := env.post("/api/auth/login", map[string]string{
			"username": "nobody",
			"password": "wrongpass",
		}, "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Error("Expected a 429 after hammering the login endpoint")
	}

	// Endpoints outside the auth group stay reachable.
	resp, err := env.get("/api/markets", "")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected markets to stay reachable, got %d", resp.StatusCode)
	}
}

func TestE2E_MarketLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	authority, _, _ := env.registerUser(t, "authority", "password123")
	outsider, _, _ := env.registerUser(t, "outsider", "password123")

	marketID := env.createMarket(t, authority, 1_000)

	t.Run("GetMarket", func(t *testing.T) {
		resp, err := env.get("/api/markets/"+marketID, "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var market map[string]interface{}
		decodeJSON(t, resp, &market)
		if market["active"] != true {
			t.Error("Expected a fresh market to be active")
		}
		if market["conversion_rate"].(float64) != 1_000 {
			t.Errorf("Expected conversion_rate 1000, got %v", market["conversion_rate"])
		}
	})

	t.Run("ListMarkets", func(t *testing.T) {
		resp, err := env.get("/api/markets", "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var markets []map[string]interface{}
		decodeJSON(t, resp, &markets)
		if len(markets) != 1 {
			t.Fatalf("Expected 1 market, got %d", len(markets))
		}
	})

	t.Run("UnknownMarket", func(t *testing.T) {
		resp, err := env.get("/api/markets/no-such-market", "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("UpdateRate", func(t *testing.T) {
		resp, err := env.post("/api/markets/"+marketID+"/rate", map[string]interface{}{
			"conversion_rate": 2_000,
		}, authority)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var market map[string]interface{}
		decodeJSON(t, resp, &market)
		if market["conversion_rate"].(float64) != 2_000 {
			t.Errorf("Expected conversion_rate 2000, got %v", market["conversion_rate"])
		}
	})

	t.Run("OutsiderCannotResolve", func(t *testing.T) {
		resp, err := env.post("/api/markets/"+marketID+"/resolve", map[string]string{
			"winner": "a",
		}, outsider)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("Resolve", func(t *testing.T) {
		resp, err := env.post("/api/markets/"+marketID+"/resolve", map[string]string{
			"winner": "a",
		}, authority)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var market map[string]interface{}
		decodeJSON(t, resp, &market)
		if market["active"] != false {
			t.Error("Expected resolved market to be inactive")
		}
		if market["winning_side"] != "a" {
			t.Errorf("Expected winning_side a, got %v", market["winning_side"])
		}
	})
}

func TestE2E_OrderMatchRedeem(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	alice, _, _ := env.registerUser(t, "alice", "password123")
	bob, _, _ := env.registerUser(t, "bob", "password123")

	marketID := env.createMarket(t, alice, 1_000)

	// Complementary buys: 600k + 400k = one full unit.
	orderA := env.submitOrder(t, alice, marketID, "a", "buy", 600_000, 10)
	orderB := env.submitOrder(t, bob, marketID, "b", "buy", 400_000, 10)

	// Escrow left the buyers' balances at placement.
	if got := env.balance(t, alice); got != store.StartingBalance-6_000 {
		t.Errorf("Expected alice balance %d, got %d", store.StartingBalance-6_000, got)
	}
	if got := env.balance(t, bob); got != store.StartingBalance-4_000 {
		t.Errorf("Expected bob balance %d, got %d", store.StartingBalance-4_000, got)
	}

	t.Run("OpenOrdersListed", func(t *testing.T) {
		resp, err := env.get("/api/markets/"+marketID+"/orders", "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var orders []map[string]interface{}
		decodeJSON(t, resp, &orders)
		if len(orders) != 2 {
			t.Fatalf("Expected 2 open orders, got %d", len(orders))
		}
	})

	env.matchOrders(t, marketID, orderA, orderB)

	t.Run("PositionsMinted", func(t *testing.T) {
		account := env.getAccount(t, alice)
		positions := account["positions"].([]interface{})
		if len(positions) != 1 {
			t.Fatalf("Expected 1 position, got %d", len(positions))
		}
		pos := positions[0].(map[string]interface{})
		if pos["held_a"].(float64) != 10 {
			t.Errorf("Expected alice to hold 10 side-a shares, got %v", pos["held_a"])
		}
	})

	t.Run("FillRecorded", func(t *testing.T) {
		resp, err := env.get("/api/markets/"+marketID+"/fills", "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var fills []map[string]interface{}
		decodeJSON(t, resp, &fills)
		if len(fills) != 1 {
			t.Fatalf("Expected 1 fill, got %d", len(fills))
		}
		if fills[0]["kind"] != "match" {
			t.Errorf("Expected a match fill, got %v", fills[0]["kind"])
		}
		if fills[0]["quantity"].(float64) != 10 {
			t.Errorf("Expected quantity 10, got %v", fills[0]["quantity"])
		}
	})

	t.Run("MyFills", func(t *testing.T) {
		resp, err := env.get("/api/fills", bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var fills []map[string]interface{}
		decodeJSON(t, resp, &fills)
		if len(fills) != 1 {
			t.Fatalf("Expected 1 fill for bob, got %d", len(fills))
		}
	})

	// Settle on side a and let alice redeem 10 shares at rate 1_000.
	resp, err := env.post("/api/markets/"+marketID+"/resolve", map[string]string{"winner": "a"}, alice)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	resp.Body.Close()
	mustStatus(t, resp, http.StatusOK)

	t.Run("Redeem", func(t *testing.T) {
		resp, err := env.post("/api/markets/"+marketID+"/redeem", nil, alice)
		if err != nil {
			t.Fatalf("Redeem request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var result map[string]interface{}
		decodeJSON(t, resp, &result)
		if result["payout"].(float64) != 10_000 {
			t.Errorf("Expected payout 10000, got %v", result["payout"])
		}

		if got := env.balance(t, alice); got != store.StartingBalance-6_000+10_000 {
			t.Errorf("Expected alice balance %d, got %d", store.StartingBalance-6_000+10_000, got)
		}
	})

	t.Run("LoserRedeemsNothing", func(t *testing.T) {
		resp, err := env.post("/api/markets/"+marketID+"/redeem", nil, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for a losing redeem, got %d", resp.StatusCode)
		}
	})
}

func TestE2E_CancelOrder(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	alice, _, _ := env.registerUser(t, "alice", "password123")
	mallory, _, _ := env.registerUser(t, "mallory", "password123")

	marketID := env.createMarket(t, alice, 1_000)
	orderID := env.submitOrder(t, alice, marketID, "a", "buy", 500_000, 20)

	t.Run("OthersCannotCancel", func(t *testing.T) {
		resp, err := env.del("/api/orders/"+orderID, mallory)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("CancelRefundsEscrow", func(t *testing.T) {
		resp, err := env.del("/api/orders/"+orderID, alice)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var result map[string]interface{}
		decodeJSON(t, resp, &result)
		if result["refund"].(float64) != 10_000 {
			t.Errorf("Expected refund 10000, got %v", result["refund"])
		}

		if got := env.balance(t, alice); got != store.StartingBalance {
			t.Errorf("Expected balance restored to %d, got %d", store.StartingBalance, got)
		}
	})

	t.Run("DoubleCancel", func(t *testing.T) {
		resp, err := env.del("/api/orders/"+orderID, alice)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for double cancel, got %d", resp.StatusCode)
		}
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		resp, err := env.del("/api/orders/no-such-order", alice)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestE2E_SwapPool(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	alice, _, _ := env.registerUser(t, "alice", "password123")
	bob, _, _ := env.registerUser(t, "bob", "password123")

	marketID := env.createMarket(t, alice, 1_000)
	env.issueShares(t, marketID, alice, bob, 100)

	// Seed a pool from alice's shares: 50 a-side, 50 b-side.
	var poolID string
	t.Run("CreatePool", func(t *testing.T) {
		resp, err := env.post("/api/pools", map[string]interface{}{
			"market_id": marketID,
			"reserve_a": 50,
			"reserve_b": 50,
		}, alice)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var pool map[string]interface{}
		decodeJSON(t, resp, &pool)
		poolID = pool["id"].(string)
		if poolID == "" {
			t.Fatal("Missing pool id")
		}
		if pool["total_lp_shares"].(float64) != 2_500 {
			t.Errorf("Expected 2500 LP shares, got %v", pool["total_lp_shares"])
		}
	})

	t.Run("Swap", func(t *testing.T) {
		resp, err := env.post("/api/pools/"+poolID+"/swap", map[string]interface{}{
			"side_a_in":   true,
			"amount_in":   10,
			"minimum_out": 0,
		}, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var ev map[string]interface{}
		decodeJSON(t, resp, &ev)
		// 10 in against 50/50: fee rounds to zero, out = 50 - ceil(2500/60).
		if ev["amount_out"].(float64) != 8 {
			t.Errorf("Expected amount_out 8, got %v", ev["amount_out"])
		}
	})

	t.Run("ImpliedPrices", func(t *testing.T) {
		resp, err := env.get("/api/pools/"+poolID, "")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var pool map[string]interface{}
		decodeJSON(t, resp, &pool)
		priceA := pool["implied_price_a"].(float64)
		priceB := pool["implied_price_b"].(float64)
		if priceA+priceB != 1_000_000 {
			t.Errorf("Implied prices must sum to the scale, got %v + %v", priceA, priceB)
		}
		// Reserves 60/42 after the swap: a is the richer reserve, so it
		// prices below the midpoint.
		if priceA != 411_764 {
			t.Errorf("Expected implied_price_a 411764, got %v", priceA)
		}
	})

	t.Run("LPShares", func(t *testing.T) {
		resp, err := env.get("/api/pools/"+poolID+"/shares", alice)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var result map[string]interface{}
		decodeJSON(t, resp, &result)
		if result["lp_shares"].(float64) != 2_500 {
			t.Errorf("Expected 2500 LP shares, got %v", result["lp_shares"])
		}
	})

	t.Run("DepositAndWithdraw", func(t *testing.T) {
		resp, err := env.post("/api/pools/"+poolID+"/deposit", map[string]interface{}{
			"amount_a":   30,
			"amount_b":   21,
			"minimum_lp": 0,
		}, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		mustStatus(t, resp, http.StatusOK)

		var dep map[string]interface{}
		decodeJSON(t, resp, &dep)
		resp.Body.Close()
		lp := dep["lp_shares"].(float64)
		if lp <= 0 {
			t.Fatalf("Expected positive LP mint, got %v", lp)
		}

		resp, err = env.post("/api/pools/"+poolID+"/withdraw", map[string]interface{}{
			"lp_shares": lp,
			"minimum_a": 0,
			"minimum_b": 0,
		}, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var wd map[string]interface{}
		decodeJSON(t, resp, &wd)
		if wd["amount_a"].(float64) <= 0 || wd["amount_b"].(float64) <= 0 {
			t.Errorf("Expected both sides back, got %v/%v", wd["amount_a"], wd["amount_b"])
		}
	})

	t.Run("SecondPoolRejected", func(t *testing.T) {
		resp, err := env.post("/api/pools", map[string]interface{}{
			"market_id": marketID,
			"reserve_a": 10,
			"reserve_b": 10,
		}, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected 409 for a second pool, got %d", resp.StatusCode)
		}
	})
}

func TestE2E_PricePool(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	alice, _, _ := env.registerUser(t, "alice", "password123")
	bob, _, _ := env.registerUser(t, "bob", "password123")
	carol, _, _ := env.registerUser(t, "carol", "password123")

	var poolID string
	t.Run("Create", func(t *testing.T) {
		resp, err := env.post("/api/pricepools", map[string]interface{}{
			"target_price": 2_000_000,
			"deadline":     time.Now().Add(time.Hour),
		}, alice)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var pool map[string]interface{}
		decodeJSON(t, resp, &pool)
		poolID = pool["id"].(string)
		if poolID == "" {
			t.Fatal("Missing pool id")
		}
	})

	t.Run("Stake", func(t *testing.T) {
		resp, err := env.post("/api/pricepools/"+poolID+"/stake", map[string]interface{}{
			"above":  true,
			"amount": 1_000,
		}, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		mustStatus(t, resp, http.StatusOK)
		resp.Body.Close()

		resp, err = env.post("/api/pricepools/"+poolID+"/stake", map[string]interface{}{
			"above":  false,
			"amount": 500,
		}, carol)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		mustStatus(t, resp, http.StatusOK)
		resp.Body.Close()

		if got := env.balance(t, bob); got != store.StartingBalance-1_000 {
			t.Errorf("Expected bob debited 1000, balance %d", got)
		}
	})

	t.Run("SecondStakeRejected", func(t *testing.T) {
		resp, err := env.post("/api/pricepools/"+poolID+"/stake", map[string]interface{}{
			"above":  true,
			"amount": 100,
		}, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected 409 for a second stake, got %d", resp.StatusCode)
		}
	})

	t.Run("OutsiderCannotResolve", func(t *testing.T) {
		resp, err := env.post("/api/pricepools/"+poolID+"/resolve", map[string]interface{}{
			"price": 2_500_000,
		}, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("Resolve", func(t *testing.T) {
		// The creator is the default oracle. Target reached: above wins.
		resp, err := env.post("/api/pricepools/"+poolID+"/resolve", map[string]interface{}{
			"price": 2_500_000,
		}, alice)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var pool map[string]interface{}
		decodeJSON(t, resp, &pool)
		if pool["resolved"] != true || pool["outcome_above"] != true {
			t.Errorf("Expected resolved above, got %v", pool)
		}
	})

	t.Run("WinnerClaims", func(t *testing.T) {
		resp, err := env.post("/api/pricepools/"+poolID+"/claim", nil, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		mustStatus(t, resp, http.StatusOK)

		var result map[string]interface{}
		decodeJSON(t, resp, &result)
		// Sole winner takes the whole 1500 pot.
		if result["payout"].(float64) != 1_500 {
			t.Errorf("Expected payout 1500, got %v", result["payout"])
		}

		if got := env.balance(t, bob); got != store.StartingBalance+500 {
			t.Errorf("Expected bob up 500, balance %d", got)
		}
	})

	t.Run("DoubleClaim", func(t *testing.T) {
		resp, err := env.post("/api/pricepools/"+poolID+"/claim", nil, bob)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected 409 for double claim, got %d", resp.StatusCode)
		}
	})

	t.Run("LoserCannotClaim", func(t *testing.T) {
		resp, err := env.post("/api/pricepools/"+poolID+"/claim", nil, carol)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for losing claim, got %d", resp.StatusCode)
		}
	})

	t.Run("StakeAfterResolve", func(t *testing.T) {
		resp, err := env.post("/api/pricepools/"+poolID+"/stake", map[string]interface{}{
			"above":  true,
			"amount": 100,
		}, carol)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected 409 for staking a resolved pool, got %d", resp.StatusCode)
		}
	})
}

func TestE2E_WebSocket(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	token, _, _ := env.registerUser(t, "wstest", "password123")

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer ws.Close()

	t.Run("ReceiveSnapshot", func(t *testing.T) {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, message, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read message: %v", err)
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			t.Fatalf("Failed to parse message: %v", err)
		}
		if msg["type"] != "markets" {
			t.Errorf("Expected 'markets' snapshot, got %v", msg["type"])
		}
	})

	t.Run("ReceiveEvents", func(t *testing.T) {
		messages := make(chan map[string]interface{}, 16)
		go func() {
			for {
				ws.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, message, err := ws.ReadMessage()
				if err != nil {
					close(messages)
					return
				}
				var msg map[string]interface{}
				json.Unmarshal(message, &msg)
				messages <- msg
			}
		}()

		marketID := env.createMarket(t, token, 1_000)
		env.submitOrder(t, token, marketID, "a", "buy", 500_000, 5)

		var gotCreated, gotPlaced bool
		timeout := time.After(2 * time.Second)
	loop:
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					break loop
				}
				switch msg["type"] {
				case "market_created":
					gotCreated = true
					ev := msg["event"].(map[string]interface{})
					if ev["market_id"] != marketID {
						t.Errorf("Expected market %s in event, got %v", marketID, ev["market_id"])
					}
				case "order_placed":
					gotPlaced = true
				}
				if gotCreated && gotPlaced {
					break loop
				}
			case <-timeout:
				break loop
			}
		}

		if !gotCreated {
			t.Error("Did not receive market_created event")
		}
		if !gotPlaced {
			t.Error("Did not receive order_placed event")
		}
	})
}

func TestE2E_Leaderboard(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	for i := 1; i <= 3; i++ {
		env.registerUser(t, fmt.Sprintf("player%d", i), "password123")
	}

	resp, err := env.get("/api/leaderboard", "")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	mustStatus(t, resp, http.StatusOK)

	var leaderboard []map[string]interface{}
	decodeJSON(t, resp, &leaderboard)

	if len(leaderboard) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(leaderboard))
	}
	for i, entry := range leaderboard {
		if entry["username"] == "" {
			t.Errorf("Entry %d missing username", i)
		}
		if entry["total_pnl"].(float64) != 0 {
			t.Errorf("Expected zero pnl before any trading, got %v", entry["total_pnl"])
		}
	}
}
