package parimutuel

// Pool events, published through the same outbox/hub pipeline as the
// settlement events.

type PricePoolCreated struct {
	PoolID      string `json:"pool_id"`
	Creator     string `json:"creator"`
	Oracle      string `json:"oracle"`
	TargetPrice uint64 `json:"target_price"`
	Deadline    int64  `json:"deadline"`
	Timestamp   int64  `json:"timestamp"`
}

func (*PricePoolCreated) EventType() string { return "price_pool_created" }

type StakePlaced struct {
	PoolID     string `json:"pool_id"`
	Owner      string `json:"owner"`
	Above      bool   `json:"above"`
	Amount     uint64 `json:"amount"`
	TotalAbove uint64 `json:"total_above"`
	TotalBelow uint64 `json:"total_below"`
	Timestamp  int64  `json:"timestamp"`
}

func (*StakePlaced) EventType() string { return "stake_placed" }

type PricePoolResolved struct {
	PoolID       string `json:"pool_id"`
	OutcomeAbove bool   `json:"outcome_above"`
	Price        uint64 `json:"price"`
	Timestamp    int64  `json:"timestamp"`
}

func (*PricePoolResolved) EventType() string { return "price_pool_resolved" }

type StakeClaimed struct {
	PoolID    string `json:"pool_id"`
	Owner     string `json:"owner"`
	Payout    uint64 `json:"payout"`
	Timestamp int64  `json:"timestamp"`
}

func (*StakeClaimed) EventType() string { return "stake_claimed" }
