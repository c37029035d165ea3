package oracle

import (
	"context"
	"log"
	"sync"
	"time"

	"predex/internal/exchange"
)

// quoteTTL bounds how old a cached quote may get before the next fetch.
const quoteTTL = 30 * time.Second

// Service polls a quote source and feeds the exchange: it pushes conversion
// rates into every active market whose authority is the service account, and
// resolves parimutuel price pools that name that account as oracle. Markets
// and pools owned by anyone else are left alone.
type Service struct {
	source    Source
	exchange  *exchange.Service
	account   string
	baseUnits uint64 // collateral base units per whole collateral token

	cacheTTL time.Duration

	mu        sync.Mutex
	last      Quote
	fetchedAt time.Time
}

// New creates a service pushing quotes from source on behalf of accountID.
func New(source Source, exch *exchange.Service, accountID string, baseUnits uint64) *Service {
	return &Service{
		source:    source,
		exchange:  exch,
		account:   accountID,
		baseUnits: baseUnits,
		cacheTTL:  quoteTTL,
	}
}

// CurrentQuote returns a quote no older than the cache TTL. When the source
// fails, the last good quote is served instead; resolution staleness is
// enforced downstream by the pools themselves.
func (s *Service) CurrentQuote() (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.cacheTTL {
		return s.last, nil
	}

	q, err := s.source.FetchQuote()
	if err != nil {
		if s.fetchedAt.IsZero() {
			return Quote{}, err
		}
		log.Printf("oracle: fetch failed, serving quote from %s: %v", s.last.At.Format(time.RFC3339), err)
		return s.last, nil
	}

	s.last = q
	s.fetchedAt = time.Now()
	return q, nil
}

// Start launches the push loop. It stops when the context is cancelled.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce()
			}
		}
	}()
}

func (s *Service) runOnce() {
	q, err := s.CurrentQuote()
	if err != nil {
		log.Printf("oracle: no quote available: %v", err)
		return
	}
	s.pushRates(q)
	s.resolveDuePools(q)
}

// pushRates recomputes the conversion rate from the quote and updates every
// active market the service account controls. Unchanged rates are skipped so
// a flat price does not generate an event per tick.
func (s *Service) pushRates(q Quote) {
	rate, err := ConversionRate(s.baseUnits, q.Price)
	if err != nil {
		log.Printf("oracle: rate from quote %s failed: %v", q.Price, err)
		return
	}

	markets, err := s.exchange.Store().ListMarkets()
	if err != nil {
		log.Printf("oracle: listing markets failed: %v", err)
		return
	}
	for _, m := range markets {
		if !m.Active || m.Authority != s.account {
			continue
		}
		if m.ConversionRate == rate {
			continue
		}
		if _, err := s.exchange.UpdateRate(s.account, m.ID, rate); err != nil {
			log.Printf("oracle: rate push to market %s failed: %v", m.ID, err)
		}
	}
}

// resolveDuePools settles price pools oracled by the service account once
// the target is reached or the deadline has passed.
func (s *Service) resolveDuePools(q Quote) {
	pools, err := s.exchange.Store().ListPricePools()
	if err != nil {
		log.Printf("oracle: listing price pools failed: %v", err)
		return
	}

	micro := q.MicroUSD()
	now := time.Now()
	for _, p := range pools {
		if p.Resolved || p.Oracle != s.account {
			continue
		}
		if micro < p.TargetPrice && now.Before(p.Deadline) {
			continue
		}
		if _, err := s.exchange.ResolvePricePool(s.account, p.ID, micro, q.At); err != nil {
			log.Printf("oracle: resolving pool %s failed: %v", p.ID, err)
		}
	}
}
