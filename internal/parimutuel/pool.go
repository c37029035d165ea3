// Package parimutuel implements price-target betting pools. Stakers back
// one of two outcomes, above or below, on whether an oracle-quoted price
// reaches a target before a deadline. When the pool resolves, the winning
// side splits the combined stake of both sides in proportion to each
// winner's contribution.
//
// Like the order engine, this package holds pure pool logic. Callers own
// persistence, account debits and credits, and the one-stake-per-account
// rule, which lives at the storage layer.
package parimutuel

import (
	"errors"
	"math/bits"
	"time"
)

// CreationFee is the flat charge, in collateral base units, for opening a
// pool. The exchange credits it to the treasury account when one is
// configured.
const CreationFee uint64 = 15_000_000

// QuoteWindow bounds how far a price quote's timestamp may sit from the
// resolution clock, in either direction, before the quote is rejected.
const QuoteWindow = 300 * time.Second

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidDeadline  = errors.New("deadline must be in the future")
	ErrPoolResolved     = errors.New("pool already resolved")
	ErrPoolNotResolved  = errors.New("pool has not been resolved")
	ErrDeadlinePassed   = errors.New("staking deadline has passed")
	ErrStaleQuote       = errors.New("price quote outside the freshness window")
	ErrCannotResolveYet = errors.New("target not reached and deadline not passed")
	ErrAlreadyClaimed   = errors.New("stake already claimed")
	ErrNotWinner        = errors.New("stake is not on the winning side")
	ErrAlreadyStaked    = errors.New("account already staked in this pool")
	ErrEmptyPool        = errors.New("winning side holds no stake")
	ErrUnauthorized     = errors.New("caller is not authorized")
	ErrOverflow         = errors.New("arithmetic overflow")
)

// Pool is a parimutuel bet on a price target. TargetPrice is quoted in
// micro-USD, six decimal places, matching the oracle feed. The above side
// wins exactly when the quoted price at resolution is at or beyond the
// target.
type Pool struct {
	ID           string    `json:"id"`
	Creator      string    `json:"creator"`
	Oracle       string    `json:"oracle"`
	TargetPrice  uint64    `json:"target_price"`
	Deadline     time.Time `json:"deadline"`
	TotalAbove   uint64    `json:"total_above"`
	TotalBelow   uint64    `json:"total_below"`
	Resolved     bool      `json:"resolved"`
	OutcomeAbove bool      `json:"outcome_above"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stake records one account's position in a pool. Each account holds at
// most one stake per pool.
type Stake struct {
	PoolID  string `json:"pool_id"`
	Owner   string `json:"owner"`
	Above   bool   `json:"above"`
	Amount  uint64 `json:"amount"`
	Claimed bool   `json:"claimed"`
}

// NewPool opens a pool on the price reaching targetPrice before deadline.
// The oracle is the only identity that can ever resolve the pool, so it
// must be named up front.
func NewPool(id, creator, oracle string, targetPrice uint64, deadline, now time.Time) (*Pool, error) {
	if targetPrice == 0 {
		return nil, ErrInvalidAmount
	}
	if oracle == "" {
		return nil, ErrUnauthorized
	}
	if !deadline.After(now) {
		return nil, ErrInvalidDeadline
	}
	return &Pool{
		ID:          id,
		Creator:     creator,
		Oracle:      oracle,
		TargetPrice: targetPrice,
		Deadline:    deadline,
		CreatedAt:   now,
	}, nil
}

// Stake adds amount on one side of the pool and returns the stake record
// for the caller to persist. Staking closes at the deadline and stops once
// the pool resolves.
func (p *Pool) Stake(owner string, above bool, amount uint64, now time.Time) (*Stake, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if p.Resolved {
		return nil, ErrPoolResolved
	}
	if !now.Before(p.Deadline) {
		return nil, ErrDeadlinePassed
	}
	if above {
		total, err := checkedAdd(p.TotalAbove, amount)
		if err != nil {
			return nil, err
		}
		p.TotalAbove = total
	} else {
		total, err := checkedAdd(p.TotalBelow, amount)
		if err != nil {
			return nil, err
		}
		p.TotalBelow = total
	}
	return &Stake{PoolID: p.ID, Owner: owner, Above: above, Amount: amount}, nil
}

// Resolve settles the pool from a price quote. Only the pool's oracle may
// call it, and the quote timestamp must sit within QuoteWindow of now on
// either side. Resolution is possible once the target is reached or the
// deadline has passed, whichever comes first.
func (p *Pool) Resolve(caller string, currentPrice uint64, quotedAt, now time.Time) error {
	if p.Resolved {
		return ErrPoolResolved
	}
	if caller != p.Oracle {
		return ErrUnauthorized
	}
	if quotedAt.Before(now.Add(-QuoteWindow)) || quotedAt.After(now.Add(QuoteWindow)) {
		return ErrStaleQuote
	}
	targetReached := currentPrice >= p.TargetPrice
	if !targetReached && now.Before(p.Deadline) {
		return ErrCannotResolveYet
	}
	p.Resolved = true
	p.OutcomeAbove = targetReached
	return nil
}

// Claim computes the payout for a winning stake and marks it claimed. The
// payout is the stake's pro-rata share of the combined pool, rounded down,
// so up to one base unit per winner stays behind as dust.
func (p *Pool) Claim(s *Stake) (uint64, error) {
	if !p.Resolved {
		return 0, ErrPoolNotResolved
	}
	if s.Claimed {
		return 0, ErrAlreadyClaimed
	}
	if s.Above != p.OutcomeAbove {
		return 0, ErrNotWinner
	}
	winning := p.TotalAbove
	if !p.OutcomeAbove {
		winning = p.TotalBelow
	}
	if winning == 0 {
		return 0, ErrEmptyPool
	}
	total, err := checkedAdd(p.TotalAbove, p.TotalBelow)
	if err != nil {
		return 0, err
	}
	payout, err := mulDiv(s.Amount, total, winning)
	if err != nil {
		return 0, err
	}
	s.Claimed = true
	return payout, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// mulDiv computes a*b/den with a 128-bit intermediate.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrEmptyPool
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}
