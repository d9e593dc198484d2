package notify

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console imprime los informes del trader en tablas.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// PrintSimReport imprime las estadísticas de la simulación y sus posiciones abiertas.
func (c *Console) PrintSimReport(stats domain.SimStats, open []domain.SimPosition) {
	fmt.Fprintf(c.out, "\n=== SIM REPORT [%s] ===\n", c.now().Format("15:04:05"))
	fmt.Fprintf(c.out, "  Trades: %d (W:%d L:%d)  Win rate: %.1f%%  Avg PnL: %s\n",
		stats.TotalTrades, stats.WinningTrades, stats.LosingTrades, stats.WinRate, bnb(stats.AvgPnLPerTrade))
	fmt.Fprintf(c.out, "  Realized: %s (closed %s + partials %s)  Open: %s\n",
		bnb(stats.TotalPnLRealized), bnb(stats.TotalPnLClosed), bnb(stats.RealizedPnLPartial), bnb(stats.TotalPnLOpen))
	fmt.Fprintf(c.out, "  Open positions: %d  Pending buys: %d\n", stats.OpenPositions, stats.PendingBuys)

	if len(open) == 0 {
		return
	}

	sort.Slice(open, func(i, j int) bool { return open[i].OpenedAt.Before(open[j].OpenedAt) })
	table := tablewriter.NewWriter(c.out)
	table.Header("Pair", "Venue", "Entry", "Price", "PnL%", "Open PnL", "Realized", "Held", "Flags")
	for _, p := range open {
		table.Append(
			pairLabel(p.BaseSymbol, p.QuoteSymbol, p.PairKey),
			p.Venue.Label(),
			price(p.EntryPrice),
			price(p.CurrentPrice),
			fmt.Sprintf("%+.2f%%", p.PnLPct),
			bnb(p.OpenPnL),
			bnb(p.RealizedPnL),
			duration(p.Duration(c.now())),
			simFlags(p),
		)
	}
	table.Render()
}

// PrintLivePositions imprime las posiciones reales abiertas.
func (c *Console) PrintLivePositions(positions []domain.Position) {
	fmt.Fprintf(c.out, "\n=== LIVE POSITIONS (%d) ===\n", len(positions))
	if len(positions) == 0 {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Pair", "Venue", "Entry", "Last", "PnL%", "Size", "Held", "Frozen")
	for _, p := range positions {
		frozen := ""
		if p.Frozen {
			frozen = "yes"
		}
		table.Append(
			pairLabel(p.BaseSymbol, p.QuoteSymbol, p.PairKey),
			p.Venue.Label(),
			price(p.EntryPrice),
			price(p.LastPrice),
			fmt.Sprintf("%+.2f%%", p.PnLPct(p.LastPrice)),
			fmt.Sprintf("%.4f/%.4f", p.RemainingSize, p.CommittedSize),
			duration(p.Held(c.now())),
			frozen,
		)
	}
	table.Render()
}

// PrintClosed imprime el archivo de cierres y un resumen por modo.
func (c *Console) PrintClosed(closed []domain.ClosedPosition) {
	fmt.Fprintf(c.out, "\n=== CLOSED POSITIONS (%d) ===\n", len(closed))
	if len(closed) == 0 {
		fmt.Fprintln(c.out, "  no closed positions yet")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Mode", "Pair", "Venue", "Entry", "Exit", "PnL%", "PnL", "Trigger", "Held", "Closed")

	type totals struct {
		n, wins int
		pnl     float64
	}
	byMode := make(map[string]*totals)

	for i, cp := range closed {
		table.Append(
			fmt.Sprintf("%d", i+1),
			cp.Mode,
			compactName(pairLabel(cp.BaseSymbol, "", cp.PairKey), 20),
			cp.Venue.Label(),
			price(cp.EntryPrice),
			price(cp.ExitPrice),
			fmt.Sprintf("%+.2f%%", cp.PnLPct),
			bnb(cp.PnL),
			cp.Trigger,
			duration(cp.ClosedAt.Sub(cp.OpenedAt)),
			cp.ClosedAt.Local().Format("01-02 15:04"),
		)

		t, ok := byMode[cp.Mode]
		if !ok {
			t = &totals{}
			byMode[cp.Mode] = t
		}
		t.n++
		t.pnl += cp.PnL
		if cp.PnL > 0 {
			t.wins++
		}
	}
	table.Render()

	modes := make([]string, 0, len(byMode))
	for m := range byMode {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	for _, m := range modes {
		t := byMode[m]
		fmt.Fprintf(c.out, "  %-4s %d closed  win rate %.1f%%  PnL %s\n", m, t.n, pct(t.wins, t.n), bnb(t.pnl))
	}
}

// --- helpers ---

func pairLabel(base, quote, key string) string {
	switch {
	case base != "" && quote != "":
		return base + "/" + quote
	case base != "":
		return base
	default:
		return compactName(key, 14)
	}
}

func simFlags(p domain.SimPosition) string {
	var flags []string
	if p.Mirror {
		flags = append(flags, "mirror")
	}
	if p.Frozen {
		flags = append(flags, "frozen")
	}
	if p.NeedsLiqAck {
		flags = append(flags, "LIQ!")
	}
	return strings.Join(flags, ",")
}

func bnb(v float64) string {
	return fmt.Sprintf("%+.6f BNB", v)
}

// price usa notación científica para los precios de memecoins (< 0.0001).
func price(v float64) string {
	if v != 0 && v < 0.0001 {
		return fmt.Sprintf("%.4e", v)
	}
	return fmt.Sprintf("%.6f", v)
}

func duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
