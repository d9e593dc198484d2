package live

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/application/engine"
	"github.com/alejandrodnm/autotrader/internal/application/journal"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"github.com/alejandrodnm/autotrader/internal/retry"
	"github.com/ethereum/go-ethereum/common"
)

// considerBuy pasa la cadena de admisión y, si se admite, compra.
// Los rechazos y las compras fallidas no son errores del evento.
func (le *Engine) considerBuy(ctx context.Context, c engine.Candidate, ts config.TradeSettings, now time.Time) error {
	ev := c.Event
	if rej := le.admission.Check(c, le.store, ts, now); rej != nil {
		le.recorder.Rejected(engine.ModeReal, rej.Reason)
		slog.Debug("live: buy rejected", "pair", ev.PairKey, "symbol", ev.BaseSymbol, "reason", rej.String())
		if !rej.Routine() {
			le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditReject, ev.PairKey, "REJECTED %s: %s", engine.TruncateStr(ev.BaseSymbol, engine.SymbolLen), rej.String())
		}
		return nil
	}

	amount := bnbToWei(ts.BuyAmount)
	if amount.Sign() == 0 {
		return nil
	}

	token, ok := ev.TradedToken(le.wrapper.WBNB())
	if !ok {
		slog.Debug("live: pair has no WBNB side, skipping", "pair", ev.PairKey, "venue", ev.Venue.String())
		return nil
	}

	le.buy(ctx, ev, token, amount, ts, now)
	return nil
}

func (le *Engine) buy(ctx context.Context, ev domain.PairEvent, token common.Address, amount *big.Int, ts config.TradeSettings, now time.Time) {
	owner := le.exec.Owner()
	req := ports.SwapRequest{
		Venue:       ev.Venue,
		TokenOut:    token,
		AmountIn:    amount,
		SlippageBps: ts.SlippageBps,
		Recipient:   owner,
		GasPrice:    ts.GasPriceWei,
	}

	if ev.Venue.BondingCurve() {
		// FourMeme paga en BNB nativo: TokenIn queda a cero
		req.SlippageBps = ts.FMSlippageBps
	} else {
		if err := le.ensureWBNB(ctx, owner, amount, ts.WrapRatioPct, ev.BaseSymbol); err != nil {
			le.recordBuyFailure(ctx, ev, err)
			return
		}
		req.TokenIn = le.wrapper.WBNB()
	}

	before := le.safeBalance(ctx, token, owner)
	swap, err := le.exec.Swap(ctx, req)
	if err != nil {
		le.recordBuyFailure(ctx, ev, &domain.AdapterError{Op: "swap", Venue: ev.Venue, Err: err})
		return
	}

	if err := retry.Sleep(ctx, le.cfg.BuySettle); err != nil {
		return
	}
	after := le.safeBalance(ctx, token, owner)
	if after.Cmp(before) <= 0 {
		mismatch := &domain.BalanceMismatchError{Token: token, TxHash: swap.TxHash, Before: before, After: after, Buy: true}
		slog.Warn("live: buy not confirmed by balance", "pair", ev.PairKey, "err", mismatch)
		le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditFail, ev.PairKey, "✗ %s BUY %s: %v",
			ev.Venue.Label(), ev.BaseSymbol, mismatch)
		return
	}

	le.store.ClearBuyFailures(ev.PairKey)
	pos := domain.Position{
		PairKey:       ev.PairKey,
		Venue:         ev.Venue,
		Token:         token,
		BaseSymbol:    ev.BaseSymbol,
		QuoteSymbol:   ev.QuoteSymbol,
		EntryPrice:    ev.Price,
		LastPrice:     ev.Price,
		CommittedSize: ts.BuyAmount,
		RemainingSize: ts.BuyAmount,
		OpenedAt:      now,
		TPPct:         ts.TP(),
		SLPct:         ts.SL(),
	}
	if le.sim != nil {
		le.sim.MirrorBuy(pos, ev.Liquidity)
	}
	le.store.RecordBuy(pos)
	le.recorder.Bought(engine.ModeReal, ev.Venue)
	le.recorder.OpenPositions(engine.ModeReal, le.store.OpenCount())

	slog.Info("live: BOUGHT", "pair", ev.PairKey, "symbol", ev.BaseSymbol, "venue", ev.Venue.Label(),
		"bnb", fmt.Sprintf("%g", ts.BuyAmount), "price", fmt.Sprintf("%.8f", ev.Price), "tx", swap.TxHash)
	le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditBuy, ev.PairKey, "✓ %s BUY %s (%g BNB) tx=%s token balance=%s",
		ev.Venue.Label(), ev.BaseSymbol, ts.BuyAmount, swap.TxHash, after)

	// best-effort: un fallo al encolar solo queda en el log
	venue := ev.Venue
	retry.Detached(ctx, "allowance enqueue "+token.Hex(), func(ctx context.Context) error {
		return le.allowances.Enqueue(ctx, token, venue)
	})
}

// ensureWBNB envuelve BNB si el saldo de WBNB no cubre amount, limitado a
// wrapRatioPct del saldo nativo.
func (le *Engine) ensureWBNB(ctx context.Context, owner common.Address, amount *big.Int, wrapRatioPct int64, label string) error {
	wbnb := le.wrapper.WBNB()
	balance := le.safeBalance(ctx, wbnb, owner)
	if balance.Cmp(amount) >= 0 {
		return nil
	}

	missing := new(big.Int).Sub(amount, balance)
	native, err := le.wrapper.NativeBalance(ctx, owner)
	if err != nil || native == nil {
		native = new(big.Int)
	}
	maxWrap := new(big.Int).Mul(native, big.NewInt(wrapRatioPct))
	maxWrap.Quo(maxWrap, big.NewInt(100))
	wrap := missing
	if maxWrap.Cmp(wrap) < 0 {
		wrap = maxWrap
	}
	if wrap.Sign() == 0 {
		return fmt.Errorf("need %s WBNB, have %s, BNB %s (wrap ratio %d%%)",
			weiToBNB(amount), weiToBNB(balance), weiToBNB(native), wrapRatioPct)
	}

	tx, err := le.wrapper.Wrap(ctx, wrap)
	if err != nil {
		return &domain.AdapterError{Op: "wrap", Err: fmt.Errorf("failed to wrap BNB: %w", err)}
	}
	le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditWrap, "", "wrap %s BNB -> WBNB for %s (ratio %d%%) tx=%s",
		weiToBNB(wrap), label, wrapRatioPct, tx)

	after := le.safeBalance(ctx, wbnb, owner)
	if after.Cmp(amount) < 0 {
		return fmt.Errorf("after wrap WBNB %s < needed %s", weiToBNB(after), weiToBNB(amount))
	}
	return nil
}

// recordBuyFailure cuenta el fallo; al tercero el par queda bloqueado.
func (le *Engine) recordBuyFailure(ctx context.Context, ev domain.PairEvent, err error) {
	count, blocked := le.store.RecordBuyFailure(ev.PairKey)
	le.recorder.BuyFailed(ev.Venue)
	slog.Warn("live: buy failed", "pair", ev.PairKey, "symbol", ev.BaseSymbol, "attempts", count, "err", err)
	le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditFail, ev.PairKey, "%s BUY failed %s attempts=%d err=%v",
		ev.Venue.Label(), ev.PairKey, count, err)
	if blocked {
		le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditFail, ev.PairKey, "SKIP %s: marked do-not-rebuy after %d failed attempts",
			ev.PairKey, count)
	}
}
