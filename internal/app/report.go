package app

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/engine"
	"github.com/DIGIX666/Arena/internal/service"
)

const timeLayout = "2006-01-02 15:04"

// WriteReport renders markets, seasonal markets and the treasury to w.
func WriteReport(ctx context.Context, w io.Writer, eng *engine.Engine) error {
	base := func(a amount.Amount) string { return a.Format(amount.BaseDecimals) }

	fmt.Fprintf(w, "\nMarkets\n")
	markets := tablewriter.NewWriter(w)
	markets.Header("ID", "Kind", "Title", "Status", "Pot", "Net pot", "Paid out", "Deadline")
	all := eng.Markets(ctx)
	for i := range all {
		m := &all[i]
		if err := markets.Append(
			strconv.FormatUint(m.ID, 10),
			service.MarketKind(m),
			m.Title,
			string(m.Status),
			base(m.PotTotal),
			base(m.NetPot),
			base(m.PaidOut),
			m.Deadline.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("report: markets: %w", err)
		}
	}
	if err := markets.Render(); err != nil {
		return fmt.Errorf("report: markets: %w", err)
	}

	fmt.Fprintf(w, "\nSeasonal markets\n")
	seasonal := tablewriter.NewWriter(w)
	seasonal.Header("ID", "Type", "Title", "Status", "Pot", "Protected", "Secondary paid")
	for _, sm := range eng.SeasonalMarkets(ctx) {
		if err := seasonal.Append(
			strconv.FormatUint(sm.ID, 10),
			sm.SeasonalType.String(),
			sm.Title,
			string(sm.Status),
			base(sm.PotTotal),
			strconv.FormatBool(sm.ProtectionTriggered),
			sm.SecondaryPaid.Format(amount.SecondaryDecimals),
		); err != nil {
			return fmt.Errorf("report: seasonal: %w", err)
		}
	}
	if err := seasonal.Render(); err != nil {
		return fmt.Errorf("report: seasonal: %w", err)
	}

	meta := eng.Meta(ctx)
	fmt.Fprintf(w, "\nTreasury\n")
	treasury := tablewriter.NewWriter(w)
	treasury.Header("Item", "Value")
	rows := [][]string{
		{"fees_accumulated", base(meta.FeesAccumulated)},
		{"secondary_reserve", meta.SecondaryReserve.Format(amount.SecondaryDecimals)},
		{"creation_fee", base(meta.CreationFee)},
		{"user_creation_enabled", strconv.FormatBool(meta.UserCreationEnabled)},
		{"paused", strconv.FormatBool(meta.Paused)},
		{"next_market_id", strconv.FormatUint(meta.NextMarketID, 10)},
		{"next_seasonal_id", strconv.FormatUint(meta.NextSeasonalID, 10)},
		{"next_raffle_id", strconv.FormatUint(meta.NextRaffleID, 10)},
	}
	for _, row := range rows {
		if err := treasury.Append(row[0], row[1]); err != nil {
			return fmt.Errorf("report: treasury: %w", err)
		}
	}
	if err := treasury.Render(); err != nil {
		return fmt.Errorf("report: treasury: %w", err)
	}
	return nil
}
