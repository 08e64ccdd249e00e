// Package analytics maintains the short-lived "items sold per shift" cache
// that the ledger usage computation reads.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// SoldLine aggregates one menu item sold during a shift together with the
// raw-material factors attached to it.
type SoldLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Quantity       int64  `json:"quantity"`
	RollsPerItem   int64  `json:"rolls_per_item"`
	PattiesPerItem int64  `json:"patties_per_item"`
	DrinksPerItem  int64  `json:"drinks_per_item"`
}

// SoldItems is the cached payload for one business date.
type SoldItems struct {
	ShiftDate shift.Date   `json:"shift_date"`
	Window    shift.Window `json:"window"`
	Lines     []SoldLine   `json:"lines"`
	BuiltAt   time.Time    `json:"built_at"`
}

// Repository aggregates raw POS receipt lines.
type Repository interface {
	SoldLines(ctx context.Context, window shift.Window) ([]SoldLine, error)
}

// Service serves SoldItems from the cache and builds the entry when it is
// missing. A read may therefore write to Redis.
type Service struct {
	repo     Repository
	cache    *Cache
	calendar shift.Calendar
	logger   *slog.Logger
	group    singleflight.Group
	now      func() time.Time

	buildTimeout time.Duration
}

const defaultBuildTimeout = 30 * time.Second

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache, calendar shift.Calendar, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		cache:        cache,
		calendar:     calendar,
		logger:       logger,
		now:          time.Now,
		buildTimeout: defaultBuildTimeout,
	}
}

// SoldItems returns the items sold during the business date, building and
// caching the aggregate on a miss. Concurrent misses for the same date share
// one build. The build is detached from the first caller's cancellation so a
// departing caller cannot fail the others; each caller still stops waiting
// when its own ctx ends.
func (s *Service) SoldItems(ctx context.Context, date shift.Date) (SoldItems, error) {
	key, err := s.cache.BuildKey(ctx, keySoldItems(date))
	if err != nil {
		return SoldItems{}, fmt.Errorf("analytics: build key: %w", err)
	}
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		var out SoldItems
		err := s.cache.FetchJSON(buildCtx, key, &out, func(ctx context.Context) (interface{}, error) {
			return s.build(ctx, date)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return SoldItems{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return SoldItems{}, res.Err
		}
		return res.Val.(SoldItems), nil
	}
}

// Invalidate drops the cached aggregate for a date, e.g. after a POS sync.
func (s *Service) Invalidate(ctx context.Context, date shift.Date) error {
	key, err := s.cache.BuildKey(ctx, keySoldItems(date))
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, key)
}

func (s *Service) build(ctx context.Context, date shift.Date) (SoldItems, error) {
	window := s.calendar.Window(date)
	lines, err := s.repo.SoldLines(ctx, window)
	if err != nil {
		return SoldItems{}, fmt.Errorf("analytics: build sold items %s: %w", date, err)
	}
	if lines == nil {
		lines = []SoldLine{}
	}
	s.logger.Info("built sold items cache",
		slog.String("shift_date", date.String()),
		slog.Int("lines", len(lines)),
	)
	return SoldItems{
		ShiftDate: date,
		Window:    window,
		Lines:     lines,
		BuiltAt:   s.now().UTC(),
	}, nil
}

func keySoldItems(date shift.Date) string {
	return "analytics:sold_items:" + date.String()
}
