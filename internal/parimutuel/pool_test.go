package parimutuel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

var (
	testNow      = time.Unix(1_700_000_000, 0)
	testDeadline = testNow.Add(24 * time.Hour)
)

func testPool(t *testing.T) *Pool {
	t.Helper()
	p, err := NewPool("pool-1", "alice", "oracle-1", 2_000_000, testDeadline, testNow)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return p
}

func TestNewPool(t *testing.T) {
	p := testPool(t)
	if p.Creator != "alice" || p.Oracle != "oracle-1" {
		t.Errorf("unexpected identities: creator %q, oracle %q", p.Creator, p.Oracle)
	}
	if p.TargetPrice != 2_000_000 {
		t.Errorf("expected target 2_000_000, got %d", p.TargetPrice)
	}
	if p.TotalAbove != 0 || p.TotalBelow != 0 {
		t.Errorf("new pool should hold no stake, got %d/%d", p.TotalAbove, p.TotalBelow)
	}
	if p.Resolved {
		t.Error("new pool should not be resolved")
	}
	if !p.CreatedAt.Equal(testNow) {
		t.Errorf("expected CreatedAt %v, got %v", testNow, p.CreatedAt)
	}
}

func TestNewPoolValidation(t *testing.T) {
	if _, err := NewPool("p", "alice", "oracle-1", 0, testDeadline, testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero target: got %v, want ErrInvalidAmount", err)
	}
	if _, err := NewPool("p", "alice", "", 2_000_000, testDeadline, testNow); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("missing oracle: got %v, want ErrUnauthorized", err)
	}
	if _, err := NewPool("p", "alice", "oracle-1", 2_000_000, testNow, testNow); !errors.Is(err, ErrInvalidDeadline) {
		t.Errorf("deadline not after now: got %v, want ErrInvalidDeadline", err)
	}
}

func TestStakeAccumulatesSides(t *testing.T) {
	p := testPool(t)

	s, err := p.Stake("bob", true, 5_000_000, testNow)
	if err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if s.PoolID != "pool-1" || s.Owner != "bob" || !s.Above || s.Amount != 5_000_000 || s.Claimed {
		t.Errorf("unexpected stake record: %+v", s)
	}
	if _, err := p.Stake("carol", false, 3_000_000, testNow); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if p.TotalAbove != 5_000_000 || p.TotalBelow != 3_000_000 {
		t.Errorf("expected totals 5_000_000/3_000_000, got %d/%d", p.TotalAbove, p.TotalBelow)
	}
}

func TestStakeValidation(t *testing.T) {
	p := testPool(t)

	if _, err := p.Stake("bob", true, 0, testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := p.Stake("bob", true, 1_000, testDeadline); !errors.Is(err, ErrDeadlinePassed) {
		t.Errorf("stake at the deadline: got %v, want ErrDeadlinePassed", err)
	}
	if err := p.Resolve("oracle-1", 2_500_000, testNow, testNow); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := p.Stake("bob", true, 1_000, testNow); !errors.Is(err, ErrPoolResolved) {
		t.Errorf("stake after resolution: got %v, want ErrPoolResolved", err)
	}
}

func TestResolveTargetReachedEarly(t *testing.T) {
	p := testPool(t)

	// A quote at exactly the target counts as reached, even well before
	// the deadline.
	if err := p.Resolve("oracle-1", 2_000_000, testNow, testNow); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !p.Resolved || !p.OutcomeAbove {
		t.Errorf("expected resolved above, got resolved=%v above=%v", p.Resolved, p.OutcomeAbove)
	}
}

func TestResolveAfterDeadline(t *testing.T) {
	late := testDeadline.Add(time.Hour)

	p := testPool(t)
	if err := p.Resolve("oracle-1", 1_500_000, late, late); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !p.Resolved || p.OutcomeAbove {
		t.Errorf("expected resolved below, got resolved=%v above=%v", p.Resolved, p.OutcomeAbove)
	}

	// The outcome reflects the quote at resolution time, so a price above
	// target after the deadline still settles above.
	p2 := testPool(t)
	if err := p2.Resolve("oracle-1", 2_100_000, late, late); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !p2.OutcomeAbove {
		t.Error("expected the above side to win on a late quote beyond the target")
	}
}

func TestResolveCannotResolveYet(t *testing.T) {
	p := testPool(t)
	err := p.Resolve("oracle-1", 1_999_999, testNow, testNow)
	if !errors.Is(err, ErrCannotResolveYet) {
		t.Fatalf("expected ErrCannotResolveYet, got %v", err)
	}
	if p.Resolved {
		t.Error("failed resolution must leave the pool open")
	}
}

func TestResolveAuthorization(t *testing.T) {
	p := testPool(t)
	if err := p.Resolve("mallory", 2_500_000, testNow, testNow); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := p.Resolve("alice", 2_500_000, testNow, testNow); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("pool creator is not the oracle: expected ErrUnauthorized, got %v", err)
	}
}

func TestResolveQuoteFreshness(t *testing.T) {
	p := testPool(t)

	if err := p.Resolve("oracle-1", 2_500_000, testNow.Add(-301*time.Second), testNow); !errors.Is(err, ErrStaleQuote) {
		t.Errorf("old quote: got %v, want ErrStaleQuote", err)
	}
	if err := p.Resolve("oracle-1", 2_500_000, testNow.Add(301*time.Second), testNow); !errors.Is(err, ErrStaleQuote) {
		t.Errorf("future quote: got %v, want ErrStaleQuote", err)
	}
	if p.Resolved {
		t.Fatal("stale quotes must not resolve the pool")
	}
	// The window is inclusive at exactly QuoteWindow.
	if err := p.Resolve("oracle-1", 2_500_000, testNow.Add(-QuoteWindow), testNow); err != nil {
		t.Fatalf("quote at the window edge should resolve, got %v", err)
	}
}

func TestResolveTwice(t *testing.T) {
	p := testPool(t)
	if err := p.Resolve("oracle-1", 2_500_000, testNow, testNow); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := p.Resolve("oracle-1", 1_000_000, testNow, testNow); !errors.Is(err, ErrPoolResolved) {
		t.Fatalf("expected ErrPoolResolved, got %v", err)
	}
}

func TestClaimSplitsPoolProRata(t *testing.T) {
	p := testPool(t)
	alice, _ := p.Stake("alice", true, 4_000_000, testNow)
	bob, _ := p.Stake("bob", true, 2_000_000, testNow)
	carol, _ := p.Stake("carol", false, 3_000_000, testNow)
	if err := p.Resolve("oracle-1", 2_500_000, testNow, testNow); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// 9M pool split across 6M of winning stake: alice 4M -> 6M, bob 2M -> 3M.
	payout, err := p.Claim(alice)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if payout != 6_000_000 {
		t.Errorf("expected alice payout 6_000_000, got %d", payout)
	}
	if !alice.Claimed {
		t.Error("claim must mark the stake claimed")
	}
	payout, err = p.Claim(bob)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if payout != 3_000_000 {
		t.Errorf("expected bob payout 3_000_000, got %d", payout)
	}

	if _, err := p.Claim(alice); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second claim: got %v, want ErrAlreadyClaimed", err)
	}
	if _, err := p.Claim(carol); !errors.Is(err, ErrNotWinner) {
		t.Errorf("losing claim: got %v, want ErrNotWinner", err)
	}
	if carol.Claimed {
		t.Error("a rejected claim must not mark the stake claimed")
	}
}

func TestClaimRequiresResolution(t *testing.T) {
	p := testPool(t)
	s, _ := p.Stake("bob", true, 1_000_000, testNow)
	if _, err := p.Claim(s); !errors.Is(err, ErrPoolNotResolved) {
		t.Fatalf("expected ErrPoolNotResolved, got %v", err)
	}
}

func TestClaimRoundsDown(t *testing.T) {
	p := testPool(t)
	s1, _ := p.Stake("alice", true, 1, testNow)
	s2, _ := p.Stake("bob", true, 2, testNow)
	p.Stake("carol", false, 100, testNow)
	if err := p.Resolve("oracle-1", 2_500_000, testNow, testNow); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// 103 split across 3: exact shares are 34.33 and 68.67, floored to
	// 34 and 68, leaving 1 unit of dust behind.
	out1, err := p.Claim(s1)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	out2, err := p.Claim(s2)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if out1 != 34 || out2 != 68 {
		t.Errorf("expected payouts 34/68, got %d/%d", out1, out2)
	}
}

func TestClaimWithNoLosers(t *testing.T) {
	p := testPool(t)
	s, _ := p.Stake("alice", true, 5_000_000, testNow)
	if err := p.Resolve("oracle-1", 2_500_000, testNow, testNow); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	payout, err := p.Claim(s)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if payout != 5_000_000 {
		t.Errorf("sole winner should get the stake back exactly, got %d", payout)
	}
}

func TestClaimEmptyWinningSide(t *testing.T) {
	p := testPool(t)
	p.Stake("alice", true, 5_000_000, testNow)
	late := testDeadline.Add(time.Hour)
	if err := p.Resolve("oracle-1", 1_000_000, late, late); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// A stake record that never went through Stake cannot drain the pool
	// when the winning side holds nothing.
	forged := &Stake{PoolID: p.ID, Owner: "mallory", Above: false, Amount: 1}
	if _, err := p.Claim(forged); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}

func TestPropertyClaimsNeverExceedPool(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p, err := NewPool("pool-prop", "alice", "oracle-1", 2_000_000, testDeadline, testNow)
		if err != nil {
			t.Fatalf("NewPool failed: %v", err)
		}

		n := rapid.IntRange(1, 12).Draw(t, "stakers")
		stakes := make([]*Stake, 0, n)
		for i := 0; i < n; i++ {
			above := rapid.Bool().Draw(t, "above")
			amount := rapid.Uint64Range(1, 1_000_000_000).Draw(t, "amount")
			s, err := p.Stake(fmt.Sprintf("acct-%d", i), above, amount, testNow)
			if err != nil {
				t.Fatalf("Stake failed: %v", err)
			}
			stakes = append(stakes, s)
		}
		totalPool := p.TotalAbove + p.TotalBelow

		if err := p.Resolve("oracle-1", 2_500_000, testNow, testNow); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		var paid, winners uint64
		for _, s := range stakes {
			out, err := p.Claim(s)
			if errors.Is(err, ErrNotWinner) {
				continue
			}
			if err != nil {
				t.Fatalf("Claim failed: %v", err)
			}
			paid += out
			winners++
		}
		if winners == 0 {
			if paid != 0 {
				t.Fatalf("no winners but %d paid out", paid)
			}
			return
		}
		if paid > totalPool {
			t.Fatalf("claims %d exceed the pool %d", paid, totalPool)
		}
		// Each claim floors away less than one unit.
		if totalPool-paid >= winners {
			t.Fatalf("%d winners left %d units of dust", winners, totalPool-paid)
		}
	})
}
