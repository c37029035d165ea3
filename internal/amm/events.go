package amm

// Pool events, published through the same outbox/hub pipeline as the
// settlement events.

type PoolCreated struct {
	PoolID    string `json:"pool_id"`
	MarketID  string `json:"market_id"`
	Creator   string `json:"creator"`
	ReserveA  uint64 `json:"reserve_a"`
	ReserveB  uint64 `json:"reserve_b"`
	LPShares  uint64 `json:"lp_shares"`
	Timestamp int64  `json:"timestamp"`
}

func (*PoolCreated) EventType() string { return "pool_created" }

type SwapExecuted struct {
	PoolID    string `json:"pool_id"`
	MarketID  string `json:"market_id"`
	Trader    string `json:"trader"`
	SideAIn   bool   `json:"side_a_in"`
	AmountIn  uint64 `json:"amount_in"`
	AmountOut uint64 `json:"amount_out"`
	Fee       uint64 `json:"fee"`
	Timestamp int64  `json:"timestamp"`
}

func (*SwapExecuted) EventType() string { return "swap_executed" }

type LiquidityAdded struct {
	PoolID    string `json:"pool_id"`
	MarketID  string `json:"market_id"`
	Provider  string `json:"provider"`
	AmountA   uint64 `json:"amount_a"`
	AmountB   uint64 `json:"amount_b"`
	LPShares  uint64 `json:"lp_shares"`
	Timestamp int64  `json:"timestamp"`
}

func (*LiquidityAdded) EventType() string { return "liquidity_added" }

type LiquidityRemoved struct {
	PoolID    string `json:"pool_id"`
	MarketID  string `json:"market_id"`
	Provider  string `json:"provider"`
	LPShares  uint64 `json:"lp_shares"`
	AmountA   uint64 `json:"amount_a"`
	AmountB   uint64 `json:"amount_b"`
	Timestamp int64  `json:"timestamp"`
}

func (*LiquidityRemoved) EventType() string { return "liquidity_removed" }
