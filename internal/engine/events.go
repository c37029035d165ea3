package engine

// Events describe committed operations for observers (WebSocket clients, the
// outbox, the stream publisher). The engine never consumes its own events.

// Event is implemented by every notification the engine emits.
type Event interface {
	EventType() string
}

type MarketCreated struct {
	MarketID       string `json:"market_id"`
	Authority      string `json:"authority"`
	ConversionRate uint64 `json:"conversion_rate"`
	Timestamp      int64  `json:"timestamp"`
}

func (*MarketCreated) EventType() string { return "market_created" }

type RateUpdated struct {
	MarketID  string `json:"market_id"`
	OldRate   uint64 `json:"old_rate"`
	NewRate   uint64 `json:"new_rate"`
	Timestamp int64  `json:"timestamp"`
}

func (*RateUpdated) EventType() string { return "rate_updated" }

type MarketResolved struct {
	MarketID    string `json:"market_id"`
	WinningSide Side   `json:"winning_side"`
	Timestamp   int64  `json:"timestamp"`
}

func (*MarketResolved) EventType() string { return "market_resolved" }

type OrderPlaced struct {
	OrderID   string `json:"order_id"`
	Owner     string `json:"owner"`
	MarketID  string `json:"market_id"`
	Side      Side   `json:"side"`
	Price     uint64 `json:"price"`
	Quantity  uint64 `json:"quantity"`
	Cost      uint64 `json:"cost"`
	IsSell    bool   `json:"is_sell"`
	Timestamp int64  `json:"timestamp"`
}

func (*OrderPlaced) EventType() string { return "order_placed" }

type OrdersMatched struct {
	OrderIDA  string `json:"order_id_a"`
	OrderIDB  string `json:"order_id_b"`
	MarketID  string `json:"market_id"`
	OwnerA    string `json:"owner_a"`
	OwnerB    string `json:"owner_b"`
	PriceA    uint64 `json:"price_a"`
	PriceB    uint64 `json:"price_b"`
	Quantity  uint64 `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}

func (*OrdersMatched) EventType() string { return "orders_matched" }

type SharesMerged struct {
	OrderIDA  string `json:"order_id_a"`
	OrderIDB  string `json:"order_id_b"`
	MarketID  string `json:"market_id"`
	SellerA   string `json:"seller_a"`
	SellerB   string `json:"seller_b"`
	Quantity  uint64 `json:"quantity"`
	PayoutA   uint64 `json:"payout_a"`
	PayoutB   uint64 `json:"payout_b"`
	Timestamp int64  `json:"timestamp"`
}

func (*SharesMerged) EventType() string { return "shares_merged" }

type OrderCancelled struct {
	OrderID   string `json:"order_id"`
	Owner     string `json:"owner"`
	MarketID  string `json:"market_id"`
	Refund    uint64 `json:"refund"`
	Timestamp int64  `json:"timestamp"`
}

func (*OrderCancelled) EventType() string { return "order_cancelled" }

type SharesRedeemed struct {
	Owner       string `json:"owner"`
	MarketID    string `json:"market_id"`
	WinningSide Side   `json:"winning_side"`
	Shares      uint64 `json:"shares"`
	Payout      uint64 `json:"payout"`
	Timestamp   int64  `json:"timestamp"`
}

func (*SharesRedeemed) EventType() string { return "shares_redeemed" }
