package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/application/engine"
	"github.com/alejandrodnm/autotrader/internal/application/journal"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"github.com/alejandrodnm/autotrader/internal/retry"
	"github.com/ethereum/go-ethereum/common"
)

type sellResult struct {
	TxHash string
	Amount *big.Int
	Before *big.Int
	After  *big.Int
}

// closePosition ejecuta el plan y confirma o revierte en el store.
// Un plan completo sale reservado; uno parcial no reserva nada.
func (le *Engine) closePosition(ctx context.Context, plan domain.SellPlan, ts config.TradeSettings) error {
	key := plan.PairKey
	res, err := le.executeSell(ctx, plan, ts)
	if err != nil {
		// transfer-from y el resto de fallos revierten igual: la posición vuelve a estar abierta
		if plan.Reserved {
			le.store.AbortClose(key)
		}
		le.recorder.Sold(engine.ModeReal, plan.Trigger.Kind, false)
		if errors.Is(err, domain.ErrNothingToSell) {
			slog.Info("live: skip sell, nothing to sell", "pair", key, "reason", plan.Trigger.Describe())
			le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditSell, key, "skip sell %s (%s) reason=%s token_balance=0",
				plan.Position.BaseSymbol, key, plan.Trigger.Describe())
		} else {
			slog.Warn("live: sell failed", "pair", key, "reason", plan.Trigger.Describe(), "err", err)
			le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditFail, key, "✗ %s SELL %s (%s) failed: %v",
				plan.Position.Venue.Label(), plan.Position.BaseSymbol, key, err)
		}
		return fmt.Errorf("live.closePosition: %s: %w", key, err)
	}

	le.recorder.Sold(engine.ModeReal, plan.Trigger.Kind, true)
	slog.Info("live: SOLD", "pair", key, "symbol", plan.Position.BaseSymbol, "venue", plan.Position.Venue.Label(),
		"pct", plan.PercentPts, "pnl_pct", fmt.Sprintf("%+.2f%%", plan.PnLPct), "tx", res.TxHash)
	le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditSell, key, "✓ %s SELL %s (%s) @ %+.2f%% reason=%s size:%.6f BNB pct:%d tx=%s",
		plan.Position.Venue.Label(), plan.Position.BaseSymbol, key, plan.PnLPct, plan.Trigger.Describe(),
		plan.Position.CommittedSize, plan.PercentPts, res.TxHash)

	if plan.Full() {
		pos, ok := le.store.FinishSell(key)
		if !ok {
			pos = plan.Position
		}
		le.archiveClosed(ctx, pos, plan, res.TxHash)
		le.recorder.OpenPositions(engine.ModeReal, le.store.OpenCount())
		le.mirrorClose(ctx, key, plan.Trigger.Describe())
		return nil
	}

	fraction := float64(plan.PercentPts) / 100
	le.store.ReduceRemaining(key, fraction)
	if le.sim != nil {
		if realized, ok := le.sim.MirrorPartial(key, fraction); ok {
			le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditMirror, key, "mirror partial %d%% (%s) realized: %+.6f WBNB",
				plan.PercentPts, key, realized)
		}
	}
	return nil
}

func (le *Engine) mirrorClose(ctx context.Context, key, reason string) {
	if le.sim == nil {
		return
	}
	if pos, ok := le.sim.MirrorClose(ctx, key, reason); ok {
		le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditMirror, key, "mirror close %s (%s) PnL: %+.6f WBNB",
			pos.BaseSymbol, key, pos.TotalPnL())
		return
	}
	le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditMirror, key, "mirror close skipped: no sim position %s", key)
}

// executeSell vende PercentPts del balance del token y espera a ver el balance bajar.
func (le *Engine) executeSell(ctx context.Context, plan domain.SellPlan, ts config.TradeSettings) (sellResult, error) {
	pos := plan.Position
	owner := le.exec.Owner()

	before, err := le.exec.BalanceOf(ctx, pos.Token, owner)
	if err != nil {
		return sellResult{}, &domain.AdapterError{Op: "balance", Venue: pos.Venue, Err: err}
	}
	if before.Sign() == 0 {
		return sellResult{}, domain.ErrNothingToSell
	}

	bps := int64(min(max(plan.PercentPts, 1), 100)) * 100
	amount := new(big.Int).Mul(before, big.NewInt(bps))
	amount.Quo(amount, big.NewInt(10_000))
	if amount.Sign() == 0 {
		return sellResult{}, domain.ErrNothingToSell
	}

	if err := le.allowances.EnsureNow(ctx, pos.Venue, pos.Token, amount); err != nil {
		return sellResult{}, err
	}

	req := ports.SwapRequest{
		Venue:       pos.Venue,
		TokenIn:     pos.Token,
		AmountIn:    amount,
		SlippageBps: ts.SlippageBps,
		Recipient:   owner,
		GasPrice:    ts.GasPriceWei,
	}
	attempts := le.cfg.SellPollAttempts
	swapCtx := ctx
	if pos.Venue.BondingCurve() {
		req.SlippageBps = ts.FMSlippageBps
		attempts = le.cfg.FMSellPollAttempts
		var cancel context.CancelFunc
		swapCtx, cancel = context.WithTimeout(ctx, le.cfg.FMSwapTimeout)
		defer cancel()
	} else {
		req.TokenOut = le.wrapper.WBNB()
	}

	swap, err := le.exec.Swap(swapCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && pos.Venue.BondingCurve() {
			err = fmt.Errorf("sell timeout for token %s pct %d: %w", pos.Token.Hex(), plan.PercentPts, err)
		}
		return sellResult{}, &domain.AdapterError{Op: "swap", Venue: pos.Venue, Err: err}
	}

	after, dropped := le.waitForBalanceDrop(ctx, pos.Token, owner, before, attempts)
	if !dropped {
		return sellResult{}, &domain.BalanceMismatchError{Token: pos.Token, TxHash: swap.TxHash, Before: before, After: after}
	}
	return sellResult{TxHash: swap.TxHash, Amount: amount, Before: before, After: after}, nil
}

// waitForBalanceDrop comprueba el balance justo tras el swap y, si no bajó,
// lo vuelve a leer hasta attempts veces con PollDelay de espera.
func (le *Engine) waitForBalanceDrop(ctx context.Context, token, owner common.Address, before *big.Int, attempts int) (*big.Int, bool) {
	last := le.safeBalance(ctx, token, owner)
	if last.Cmp(before) < 0 {
		return last, true
	}
	ok, _ := retry.Poll(ctx, retry.Policy{Attempts: attempts, Delay: retry.Fixed(le.cfg.PollDelay)},
		func(ctx context.Context) (bool, error) {
			bal, err := le.exec.BalanceOf(ctx, token, owner)
			if err != nil {
				return false, err
			}
			last = bal
			return bal.Cmp(before) < 0, nil
		})
	return last, ok
}

// safeBalance lee un balance tratando los errores como cero.
func (le *Engine) safeBalance(ctx context.Context, token, owner common.Address) *big.Int {
	bal, err := le.exec.BalanceOf(ctx, token, owner)
	if err != nil || bal == nil {
		slog.Debug("live: balance read failed, assuming zero", "token", token.Hex(), "err", err)
		return new(big.Int)
	}
	return bal
}

// ManualSell vende pct (1..100) de una posición real. 100 reserva y confirma
// igual que un cierre por trigger; los parciales no reservan.
// Sin posición devuelve ErrPositionNotFound; con un cierre en curso, ErrAlreadyClosing.
func (le *Engine) ManualSell(ctx context.Context, key string, pct int, ts config.TradeSettings) (bool, error) {
	key = domain.PairKey(key)
	pct = min(max(pct, 1), 100)

	pos, ok := le.store.Get(key)
	if !ok {
		le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditManual, key, "manual sell ignored: no real position %s", key)
		return false, fmt.Errorf("live.Engine.ManualSell: %s: %w", key, domain.ErrPositionNotFound)
	}
	reserved := false
	switch {
	case pct >= 100:
		if !le.store.ReserveClose(key) {
			le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditManual, key, "manual sell ignored: already closing %s", key)
			return false, fmt.Errorf("live.Engine.ManualSell: %s: %w", key, domain.ErrAlreadyClosing)
		}
		reserved = true
	case le.store.IsClosing(key):
		le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditManual, key, "manual partial sell ignored: already closing %s", key)
		return false, fmt.Errorf("live.Engine.ManualSell: %s: %w", key, domain.ErrAlreadyClosing)
	}

	pnl := 0.0
	if le.sim != nil {
		if sp, ok := le.sim.Position(key); ok {
			pnl = sp.PnLPct
		}
	}

	plan := domain.SellPlan{
		PairKey:    key,
		Position:   pos,
		PnLPct:     pnl,
		Trigger:    domain.CloseTrigger{Kind: domain.TriggerManual},
		PercentPts: pct,
		Reserved:   reserved,
	}
	if err := le.closePosition(ctx, plan, ts); err != nil {
		return false, err
	}
	return true, nil
}

// ManualSellAll vende el 100% de cada posición en serie. Las que ya tienen
// un cierre en curso se saltan: ese cierre es dueño de la reserva.
// Devuelve cuántas se vendieron y los errores acumulados.
func (le *Engine) ManualSellAll(ctx context.Context, ts config.TradeSettings) (int, error) {
	var errs []error
	sold := 0
	for _, key := range le.store.Keys() {
		_, err := le.ManualSell(ctx, key, 100, ts)
		switch {
		case errors.Is(err, domain.ErrAlreadyClosing):
			le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditManual, key, "TAKE ALL: skipped %s (close in progress)", key)
		case errors.Is(err, domain.ErrPositionNotFound):
			le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditManual, key, "TAKE ALL: skipped %s (no real position)", key)
		case err != nil:
			errs = append(errs, err)
			le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditManual, key, "TAKE ALL: sell failed for %s: %v", key, err)
		default:
			sold++
		}
	}
	return sold, errors.Join(errs...)
}

// ManualRemove deja de gestionar el par en el trader real y en el simulador,
// y bloquea nuevas compras.
func (le *Engine) ManualRemove(ctx context.Context, key string) bool {
	key = domain.PairKey(key)
	removed := le.store.Remove(key)
	if le.sim != nil && le.sim.Remove(key) {
		removed = true
	}
	if removed {
		le.recorder.OpenPositions(engine.ModeReal, le.store.OpenCount())
		le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditManual, key, "manual REMOVE applied: %s", key)
	} else {
		le.journal.Logf(ctx, journal.ScopeTrade, domain.AuditManual, key, "manual REMOVE ignored: %s (no position)", key)
	}
	return removed
}
