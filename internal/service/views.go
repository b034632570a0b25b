package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/DIGIX666/Arena/internal/domain"
)

func marketViewKey(id uint64) string   { return "market:" + strconv.FormatUint(id, 10) }
func seasonalViewKey(id uint64) string { return "seasonal:" + strconv.FormatUint(id, 10) }

// MarketKind labels a market view by who created it.
func MarketKind(m *domain.Market) string {
	if m.AdminCreated {
		return "admin"
	}
	return "user"
}

// MarketView returns the read model of a market, served from the view cache
// when possible.
func (s *ArenaService) MarketView(ctx context.Context, id uint64) (domain.MarketView, error) {
	return cachedView(ctx, s, marketViewKey(id), func() (domain.MarketView, error) {
		m, err := s.eng.Market(ctx, id)
		if err != nil {
			return domain.MarketView{}, err
		}
		return m.View(MarketKind(&m)), nil
	})
}

// SeasonalView returns the read model of a seasonal market.
func (s *ArenaService) SeasonalView(ctx context.Context, id uint64) (domain.SeasonalView, error) {
	return cachedView(ctx, s, seasonalViewKey(id), func() (domain.SeasonalView, error) {
		sm, err := s.eng.SeasonalMarket(ctx, id)
		if err != nil {
			return domain.SeasonalView{}, err
		}
		return sm.View(), nil
	})
}

// MarketViews lists every market.
func (s *ArenaService) MarketViews(ctx context.Context) []domain.MarketView {
	markets := s.eng.Markets(ctx)
	out := make([]domain.MarketView, 0, len(markets))
	for i := range markets {
		out = append(out, markets[i].View(MarketKind(&markets[i])))
	}
	return out
}

// AuditLog lists audit entries. It returns nothing when no audit store is
// configured.
func (s *ArenaService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.opts.Audit == nil {
		return nil, nil
	}
	return s.opts.Audit.List(ctx, opts)
}

func cachedView[T any](ctx context.Context, s *ArenaService, key string, load func() (T, error)) (T, error) {
	if s.opts.Views != nil {
		if raw, err := s.opts.Views.Get(ctx, key); err == nil {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	if s.opts.Views != nil {
		if raw, err := json.Marshal(v); err == nil {
			if err := s.opts.Views.Set(ctx, key, raw); err != nil {
				s.logger.WarnContext(ctx, "view cache set failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return v, nil
}
