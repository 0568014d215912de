package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/JHOFER-Cloud/piko-exporter/piko"
)

const (
	scrapeTimeout = 20 * time.Second
	// PIKO inverters switch their web interface off at night
	breakerFailures = 3
	breakerOpenFor  = 5 * time.Minute
)

// scraper polls one inverter and remembers its identity
type scraper struct {
	inverter Inverter
	fetcher  *piko.HTTPFetcher
	client   *piko.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger

	mu   sync.Mutex
	info *piko.Info
}

func newScraper(inv Inverter, logger *zap.Logger) *scraper {
	logger = logger.With(zap.String("inverter", inv.Name))
	fetcher := piko.NewHTTPFetcher(inv.Host, piko.WithCredentials(inv.Username, inv.Password))
	return &scraper{
		inverter: inv,
		fetcher:  fetcher,
		client:   piko.NewClient(fetcher, piko.WithLogger(logger)),
		breaker:  newBreaker(inv.Name, logger),
		logger:   logger,
	}
}

func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: breakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("inverter breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// scrape runs one poll cycle. The snapshot is returned even when the
// index page failed, so consumption data can still be used.
func (s *scraper) scrape(ctx context.Context) (*piko.Snapshot, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		snap := s.client.Refresh(ctx)
		return snap, snap.DataErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Debug("skipping scrape, inverter unavailable", zap.Error(err))
		return nil, err
	}
	snap, _ := res.(*piko.Snapshot)
	return snap, err
}

// inverterInfo returns serial and model, fetched once and then cached
func (s *scraper) inverterInfo(ctx context.Context) (piko.Info, bool) {
	s.mu.Lock()
	cached := s.info
	s.mu.Unlock()
	if cached != nil {
		return *cached, true
	}

	info, err := s.fetcher.FetchInfo(ctx)
	if err != nil {
		s.logger.Debug("fetching inverter info failed", zap.Error(err))
		return piko.Info{}, false
	}

	s.mu.Lock()
	s.info = &info
	s.mu.Unlock()
	return info, true
}
