package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"predex/internal/amm"
	"predex/internal/cache"
	"predex/internal/engine"
	"predex/internal/exchange"
	"predex/internal/parimutuel"
	"predex/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

type Server struct {
	svc         *exchange.Service
	store       *store.Store
	hub         *Hub
	sessions    *SessionStore
	rateLimiter *RateLimiter
	cache       *cache.Client
	staticFS    fs.FS
	upgrader    websocket.Upgrader
	corsOrigins []string // Allowed CORS origins (empty = allow all)
}

// NewServer wires an HTTP/WebSocket front onto the exchange. The server
// registers itself as the service's event sink, so every state change the
// exchange publishes reaches connected WebSocket clients.
func NewServer(svc *exchange.Service, st *store.Store, staticFS fs.FS) *Server {
	s := &Server{
		svc:         svc,
		store:       st,
		hub:         NewHub(),
		sessions:    NewSessionStore(st),
		rateLimiter: NewRateLimiter(20, 1*time.Minute), // 20 auth attempts per minute per IP
		staticFS:    staticFS,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}
	svc.SetSink(s.broadcastEvent)
	return s
}

// SetCORSOrigins sets the allowed CORS origins.
// Pass an empty slice to allow all origins (default, for development).
func (s *Server) SetCORSOrigins(origins []string) {
	s.corsOrigins = origins
}

// SetCache attaches a snapshot cache for the market read endpoints. A nil
// client leaves caching off.
func (s *Server) SetCache(c *cache.Client) {
	s.cache = c
}

// checkCORSOrigin checks if an origin is allowed
func (s *Server) checkCORSOrigin(origin string) bool {
	// Empty list = allow all (development mode)
	if len(s.corsOrigins) == 0 {
		return true
	}
	// Empty origin header = same-origin request, always allow
	if origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"} // Allow all in development mode
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Only the credential endpoints are rate limited; a router-wide
		// limiter proved too aggressive for polling clients.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Middleware)
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
		})
		r.Post("/auth/logout", s.handleLogout)

		r.Get("/account", s.handleGetAccount)
		r.Get("/leaderboard", s.handleLeaderboard)

		// Markets
		r.Post("/markets", s.createMarket)
		r.Get("/markets", s.listMarkets)
		r.Get("/markets/{id}", s.getMarket)
		r.Post("/markets/{id}/resolve", s.resolveMarket)
		r.Post("/markets/{id}/rate", s.updateRate)
		r.Post("/markets/{id}/redeem", s.redeem)
		r.Get("/markets/{id}/orders", s.getMarketOrders)
		r.Get("/markets/{id}/fills", s.getMarketFills)

		// Orders
		r.Post("/orders", s.submitOrder)
		r.Get("/orders", s.getOrders)
		r.Delete("/orders/{id}", s.cancelOrder)
		r.Get("/fills", s.getFills)

		// Matching is permissionless: anyone may propose a pair and the
		// engine decides whether the prices line up.
		r.Post("/match", s.matchOrders)
		r.Post("/merge", s.mergeOrders)

		// Swap pools
		r.Post("/pools", s.createPool)
		r.Get("/pools", s.listPools)
		r.Get("/pools/{id}", s.getPool)
		r.Post("/pools/{id}/swap", s.swap)
		r.Post("/pools/{id}/deposit", s.addLiquidity)
		r.Post("/pools/{id}/withdraw", s.removeLiquidity)
		r.Get("/pools/{id}/shares", s.getLPShares)

		// Price pools
		r.Post("/pricepools", s.createPricePool)
		r.Get("/pricepools", s.listPricePools)
		r.Get("/pricepools/{id}", s.getPricePool)
		r.Post("/pricepools/{id}/stake", s.stakePricePool)
		r.Post("/pricepools/{id}/resolve", s.resolvePricePool)
		r.Post("/pricepools/{id}/claim", s.claimPricePool)
		r.Get("/pricepools/{id}/stakes", s.getPoolStakes)
		r.Get("/stakes", s.getStakes)
	})

	// WebSocket
	r.Get("/ws", s.handleWebSocket)

	// Serve static files (frontend)
	if s.staticFS != nil {
		fileServer := http.FileServer(http.FS(s.staticFS))
		r.Handle("/*", fileServer)
	}

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError translates domain sentinels into HTTP statuses. Anything not
// recognized is treated as a rejected request rather than a server fault;
// the exchange validates before it touches state.
func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), errStatus(err))
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnauthorized),
		errors.Is(err, parimutuel.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, store.ErrMarketNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrPoolNotFound),
		errors.Is(err, store.ErrStakeNotFound),
		errors.Is(err, store.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrPoolExists),
		errors.Is(err, parimutuel.ErrAlreadyStaked),
		errors.Is(err, parimutuel.ErrAlreadyClaimed),
		errors.Is(err, parimutuel.ErrPoolResolved):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// broadcastEvent is the exchange's sink. Events go out enveloped so clients
// can switch on the type field.
func (s *Server) broadcastEvent(ev engine.Event) {
	s.hub.Broadcast(map[string]interface{}{
		"type":  ev.EventType(),
		"event": ev,
	})
}

type CreateMarketRequest struct {
	ID             string `json:"id"`
	ConversionRate uint64 `json:"conversion_rate"`
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	market, err := s.svc.CreateMarket(session.AccountID, req.ID, req.ConversionRate)
	if err != nil {
		writeError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), "markets")
	writeJSON(w, market)
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	var markets []*engine.Market
	if s.cache.Get(r.Context(), "markets", &markets) {
		writeJSON(w, markets)
		return
	}

	markets, err := s.store.ListMarkets()
	if err != nil {
		http.Error(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []*engine.Market{}
	}

	s.cache.Set(r.Context(), "markets", markets)
	writeJSON(w, markets)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var market engine.Market
	if s.cache.Get(r.Context(), "market:"+id, &market) {
		writeJSON(w, &market)
		return
	}

	m, err := s.store.GetMarket(id)
	if err != nil {
		writeError(w, err)
		return
	}

	s.cache.Set(r.Context(), "market:"+id, m)
	writeJSON(w, m)
}

type ResolveMarketRequest struct {
	Winner engine.Side `json:"winner"`
}

func (s *Server) resolveMarket(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req ResolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	market, err := s.svc.Resolve(session.AccountID, id, req.Winner)
	if err != nil {
		writeError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), "markets", "market:"+id)
	writeJSON(w, market)
}

type UpdateRateRequest struct {
	ConversionRate uint64 `json:"conversion_rate"`
}

func (s *Server) updateRate(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req UpdateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	market, err := s.svc.UpdateRate(session.AccountID, id, req.ConversionRate)
	if err != nil {
		writeError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), "markets", "market:"+id)
	writeJSON(w, market)
}

type RedeemResponse struct {
	Payout uint64 `json:"payout"`
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	payout, err := s.svc.Redeem(session.AccountID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, RedeemResponse{Payout: payout})
}

func (s *Server) getMarketOrders(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	orders, err := s.store.ListOpenOrdersByMarket(id)
	if err != nil {
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []*engine.Order{}
	}

	writeJSON(w, orders)
}

func (s *Server) getMarketFills(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	fills, err := s.store.ListFillsByMarket(id, queryLimit(r, 50))
	if err != nil {
		http.Error(w, "failed to list fills", http.StatusInternalServerError)
		return
	}
	if fills == nil {
		fills = []*store.Fill{}
	}

	writeJSON(w, fills)
}

// queryLimit reads a positive ?limit= parameter, or falls back.
func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

type OrderRequest struct {
	MarketID string      `json:"market_id"`
	Side     engine.Side `json:"side"` // "a" or "b"
	Kind     string      `json:"kind"` // "buy" or "sell"
	Price    uint64      `json:"price"`
	Quantity uint64      `json:"quantity"`
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var order *engine.Order
	var err error
	switch req.Kind {
	case "buy", "":
		order, err = s.svc.PlaceOrder(session.AccountID, req.MarketID, req.Side, req.Price, req.Quantity)
	case "sell":
		order, err = s.svc.PlaceSellOrder(session.AccountID, req.MarketID, req.Side, req.Price, req.Quantity)
	default:
		http.Error(w, "kind must be 'buy' or 'sell'", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, order)
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	orders, err := s.store.ListOrdersByOwner(session.AccountID)
	if err != nil {
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []*engine.Order{}
	}

	writeJSON(w, orders)
}

type CancelResponse struct {
	Status string `json:"status"`
	Refund uint64 `json:"refund"`
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "id")
	refund, err := s.svc.CancelOrder(session.AccountID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, CancelResponse{Status: "cancelled", Refund: refund})
}

func (s *Server) getFills(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	fills, err := s.store.ListFillsByOwner(session.AccountID, queryLimit(r, 50))
	if err != nil {
		http.Error(w, "failed to list fills", http.StatusInternalServerError)
		return
	}
	if fills == nil {
		fills = []*store.Fill{}
	}

	writeJSON(w, fills)
}

type MatchRequest struct {
	MarketID string `json:"market_id"`
	OrderIDA string `json:"order_id_a"`
	OrderIDB string `json:"order_id_b"`
}

func (s *Server) matchOrders(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := s.svc.MatchOrders(req.MarketID, req.OrderIDA, req.OrderIDB)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, ev)
}

func (s *Server) mergeOrders(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := s.svc.MergeOrders(req.MarketID, req.OrderIDA, req.OrderIDB)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, ev)
}

type PoolRequest struct {
	MarketID string `json:"market_id"`
	ReserveA uint64 `json:"reserve_a"`
	ReserveB uint64 `json:"reserve_b"`
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req PoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pool, err := s.svc.CreatePool(session.AccountID, req.MarketID, req.ReserveA, req.ReserveB)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, pool)
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListAMMPools()
	if err != nil {
		http.Error(w, "failed to list pools", http.StatusInternalServerError)
		return
	}
	if pools == nil {
		pools = []*amm.Pool{}
	}

	writeJSON(w, pools)
}

// PoolResponse decorates a pool with the spot prices its reserves imply.
type PoolResponse struct {
	*amm.Pool
	ImpliedPriceA uint64 `json:"implied_price_a"`
	ImpliedPriceB uint64 `json:"implied_price_b"`
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pool, err := s.store.GetAMMPool(id)
	if err != nil {
		writeError(w, err)
		return
	}

	priceA, priceB, err := pool.ImpliedPrices(engine.PriceScale)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, PoolResponse{Pool: pool, ImpliedPriceA: priceA, ImpliedPriceB: priceB})
}

type SwapRequest struct {
	SideAIn    bool   `json:"side_a_in"`
	AmountIn   uint64 `json:"amount_in"`
	MinimumOut uint64 `json:"minimum_out"`
}

func (s *Server) swap(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := s.svc.Swap(session.AccountID, id, req.SideAIn, req.AmountIn, req.MinimumOut)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, ev)
}

type DepositRequest struct {
	AmountA   uint64 `json:"amount_a"`
	AmountB   uint64 `json:"amount_b"`
	MinimumLP uint64 `json:"minimum_lp"`
}

type DepositResponse struct {
	LPShares uint64 `json:"lp_shares"`
}

func (s *Server) addLiquidity(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	lp, err := s.svc.AddLiquidity(session.AccountID, id, req.AmountA, req.AmountB, req.MinimumLP)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, DepositResponse{LPShares: lp})
}

type WithdrawRequest struct {
	LPShares uint64 `json:"lp_shares"`
	MinimumA uint64 `json:"minimum_a"`
	MinimumB uint64 `json:"minimum_b"`
}

type WithdrawResponse struct {
	AmountA uint64 `json:"amount_a"`
	AmountB uint64 `json:"amount_b"`
}

func (s *Server) removeLiquidity(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	amountA, amountB, err := s.svc.RemoveLiquidity(session.AccountID, id, req.LPShares, req.MinimumA, req.MinimumB)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, WithdrawResponse{AmountA: amountA, AmountB: amountB})
}

type LPSharesResponse struct {
	PoolID   string `json:"pool_id"`
	LPShares uint64 `json:"lp_shares"`
}

func (s *Server) getLPShares(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	shares, err := s.store.GetLPShares(id, session.AccountID)
	if err != nil {
		http.Error(w, "failed to get shares", http.StatusInternalServerError)
		return
	}

	writeJSON(w, LPSharesResponse{PoolID: id, LPShares: shares})
}

type PricePoolRequest struct {
	Oracle      string    `json:"oracle"`
	TargetPrice uint64    `json:"target_price"`
	Deadline    time.Time `json:"deadline"`
}

func (s *Server) createPricePool(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req PricePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// Creators may name a third-party oracle; left blank, they oracle
	// their own pool.
	if req.Oracle == "" {
		req.Oracle = session.AccountID
	}

	pool, err := s.svc.CreatePricePool(session.AccountID, req.Oracle, req.TargetPrice, req.Deadline)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, pool)
}

func (s *Server) listPricePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListPricePools()
	if err != nil {
		http.Error(w, "failed to list pools", http.StatusInternalServerError)
		return
	}
	if pools == nil {
		pools = []*parimutuel.Pool{}
	}

	writeJSON(w, pools)
}

func (s *Server) getPricePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.store.GetPricePool(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, pool)
}

type StakeRequest struct {
	Above  bool   `json:"above"`
	Amount uint64 `json:"amount"`
}

func (s *Server) stakePricePool(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	stake, err := s.svc.StakePricePool(session.AccountID, id, req.Above, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, stake)
}

type ResolvePricePoolRequest struct {
	Price    uint64    `json:"price"`
	QuotedAt time.Time `json:"quoted_at"`
}

func (s *Server) resolvePricePool(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req ResolvePricePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// A quote posted by hand counts as fresh.
	if req.QuotedAt.IsZero() {
		req.QuotedAt = time.Now()
	}

	pool, err := s.svc.ResolvePricePool(session.AccountID, id, req.Price, req.QuotedAt)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, pool)
}

type ClaimResponse struct {
	Payout uint64 `json:"payout"`
}

func (s *Server) claimPricePool(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	payout, err := s.svc.ClaimPricePool(session.AccountID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, ClaimResponse{Payout: payout})
}

func (s *Server) getPoolStakes(w http.ResponseWriter, r *http.Request) {
	stakes, err := s.store.ListStakesByPool(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "failed to list stakes", http.StatusInternalServerError)
		return
	}
	if stakes == nil {
		stakes = []*parimutuel.Stake{}
	}

	writeJSON(w, stakes)
}

func (s *Server) getStakes(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	stakes, err := s.store.ListStakesByOwner(session.AccountID)
	if err != nil {
		http.Error(w, "failed to list stakes", http.StatusInternalServerError)
		return
	}
	if stakes == nil {
		stakes = []*parimutuel.Stake{}
	}

	writeJSON(w, stakes)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.hub.Register(client)

	// Send the current markets as an opening snapshot.
	if markets, err := s.store.ListMarkets(); err == nil {
		data, _ := json.Marshal(map[string]interface{}{
			"type":    "markets",
			"markets": markets,
		})
		client.send <- data
	}

	go client.WritePump()
	go client.ReadPump()
}

// Shutdown stops internal goroutines (session cleanup, rate limiter, hub).
func (s *Server) Shutdown() {
	s.sessions.Stop()
	s.rateLimiter.Stop()
	s.hub.Stop()
}
