package engine

// Position tracks one account's holdings in one market. Locked shares are
// earmarked by open sell orders and stay counted in Held until burned.
//
// Invariant: LockedA <= HeldA and LockedB <= HeldB.
type Position struct {
	Owner    string `json:"owner"`
	MarketID string `json:"market_id"`
	HeldA    uint64 `json:"held_a"`
	HeldB    uint64 `json:"held_b"`
	LockedA  uint64 `json:"locked_a"`
	LockedB  uint64 `json:"locked_b"`
}

// NewPosition returns an empty position for an owner in a market.
func NewPosition(owner, marketID string) *Position {
	return &Position{Owner: owner, MarketID: marketID}
}

// Held returns the held quantity for a side.
func (p *Position) Held(s Side) uint64 {
	if s == SideA {
		return p.HeldA
	}
	return p.HeldB
}

// Locked returns the locked quantity for a side.
func (p *Position) Locked(s Side) uint64 {
	if s == SideA {
		return p.LockedA
	}
	return p.LockedB
}

// Available returns the held quantity not earmarked by open sell orders.
func (p *Position) Available(s Side) uint64 {
	return p.Held(s) - p.Locked(s)
}

// AddShares credits qty held shares on a side. Used by custody transfers
// (pool payouts) that move shares outside the order lifecycle.
func (p *Position) AddShares(s Side, qty uint64) {
	p.addHeld(s, qty)
}

// RemoveShares debits qty shares on a side. Only available (unlocked) shares
// may leave the position.
func (p *Position) RemoveShares(s Side, qty uint64) error {
	if p.Available(s) < qty {
		return ErrInsufficientShares
	}
	p.subHeld(s, qty)
	return nil
}

func (p *Position) addHeld(s Side, qty uint64) {
	if s == SideA {
		p.HeldA += qty
	} else {
		p.HeldB += qty
	}
}

func (p *Position) addLocked(s Side, qty uint64) {
	if s == SideA {
		p.LockedA += qty
	} else {
		p.LockedB += qty
	}
}

func (p *Position) subHeld(s Side, qty uint64) {
	if s == SideA {
		p.HeldA -= qty
	} else {
		p.HeldB -= qty
	}
}

func (p *Position) subLocked(s Side, qty uint64) {
	if s == SideA {
		p.LockedA -= qty
	} else {
		p.LockedB -= qty
	}
}
