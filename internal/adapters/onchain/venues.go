package onchain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const swapDeadline = 300 * time.Second

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type quoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Quote estima el output de un swap. En FourMeme tokenIn a cero es una compra con BNB.
func (c *Client) Quote(ctx context.Context, venue domain.Venue, tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, error) {
	var (
		out *big.Int
		err error
	)
	switch venue {
	case domain.VenueV2:
		out, err = c.quoteV2(ctx, tokenIn, tokenOut, amount)
	case domain.VenueV3:
		out, _, err = c.quoteV3(ctx, tokenIn, tokenOut, amount)
	case domain.VenueFourMeme:
		if tokenIn == (common.Address{}) {
			_, out, err = c.tryBuy(ctx, tokenOut, amount)
		} else {
			_, out, err = c.trySell(ctx, tokenIn, amount)
		}
	default:
		err = fmt.Errorf("unsupported venue %s", venue)
	}
	if err != nil {
		return nil, fmt.Errorf("onchain.Client.Quote: %s: %w", venue, err)
	}
	return out, nil
}

// Swap ejecuta el swap y espera la confirmación.
func (c *Client) Swap(ctx context.Context, req ports.SwapRequest) (ports.SwapResult, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return ports.SwapResult{}, fmt.Errorf("onchain.Client.Swap: amount must be positive")
	}
	if req.Recipient == (common.Address{}) {
		req.Recipient = c.address
	}

	var (
		res ports.SwapResult
		err error
	)
	switch req.Venue {
	case domain.VenueV2:
		res, err = c.swapV2(ctx, req)
	case domain.VenueV3:
		res, err = c.swapV3(ctx, req)
	case domain.VenueFourMeme:
		if req.TokenIn == (common.Address{}) {
			res, err = c.buyFourMeme(ctx, req)
		} else {
			res, err = c.sellFourMeme(ctx, req)
		}
	default:
		err = fmt.Errorf("unsupported venue %s", req.Venue)
	}
	if err != nil {
		return res, fmt.Errorf("onchain.Client.Swap: %s: %w", req.Venue, err)
	}
	slog.Info("onchain: swap confirmed", "venue", req.Venue.Label(), "in", req.TokenIn.Hex(), "out", req.TokenOut.Hex(),
		"amount", req.AmountIn.String(), "min_out", res.EstimatedOut.String(), "tx", res.TxHash)
	return res, nil
}

// Spenders devuelve los contratos que necesitan allowance para vender token.
func (c *Client) Spenders(ctx context.Context, venue domain.Venue, token common.Address) ([]common.Address, error) {
	switch venue {
	case domain.VenueV2:
		return []common.Address{pancakeV2Router}, nil
	case domain.VenueV3:
		return []common.Address{pancakeV3Router}, nil
	case domain.VenueFourMeme:
		manager, err := c.tokenManager(ctx, token)
		if err != nil {
			slog.Warn("onchain: token manager lookup failed, using TokenManager2", "token", token.Hex(), "err", err)
			manager = fourMemeManager2
		}
		return []common.Address{manager, fourMemeHelper3}, nil
	default:
		return nil, fmt.Errorf("onchain.Client.Spenders: unsupported venue %s", venue)
	}
}

func (c *Client) quoteV2(ctx context.Context, tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, error) {
	vals, err := c.callABI(ctx, v2RouterABI, pancakeV2Router, "getAmountsOut", amount, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, err
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("unexpected getAmountsOut result")
	}
	return amounts[len(amounts)-1], nil
}

func (c *Client) swapV2(ctx context.Context, req ports.SwapRequest) (ports.SwapResult, error) {
	minOut := req.MinOut
	if minOut == nil {
		quote, err := c.quoteV2(ctx, req.TokenIn, req.TokenOut, req.AmountIn)
		if err != nil {
			return ports.SwapResult{}, fmt.Errorf("quote: %w", err)
		}
		minOut = applySlippage(quote, req.SlippageBps)
	}
	data, err := v2RouterABI.Pack("swapExactTokensForTokensSupportingFeeOnTransferTokens",
		req.AmountIn, minOut, []common.Address{req.TokenIn, req.TokenOut}, req.Recipient, deadline(time.Now()))
	if err != nil {
		return ports.SwapResult{}, fmt.Errorf("pack: %w", err)
	}
	tx, err := c.sendTx(ctx, pancakeV2Router, nil, data, req.GasPrice)
	if err != nil {
		return ports.SwapResult{TxHash: tx}, err
	}
	return ports.SwapResult{EstimatedOut: minOut, TxHash: tx}, nil
}

// quoteV3 devuelve el output y el fee tier del pool usado.
func (c *Client) quoteV3(ctx context.Context, tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, int64, error) {
	fee := c.feeTier(ctx, tokenIn, tokenOut)
	vals, err := c.callABI(ctx, v3QuoterABI, pancakeV3QuoterV2, "quoteExactInputSingle", quoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amount,
		Fee:               big.NewInt(fee),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fee, err
	}
	out, err := firstBig(vals)
	return out, fee, err
}

func (c *Client) swapV3(ctx context.Context, req ports.SwapRequest) (ports.SwapResult, error) {
	minOut := req.MinOut
	fee := c.feeTier(ctx, req.TokenIn, req.TokenOut)
	if minOut == nil {
		quote, quotedFee, err := c.quoteV3(ctx, req.TokenIn, req.TokenOut, req.AmountIn)
		if err != nil {
			return ports.SwapResult{}, fmt.Errorf("quote: %w", err)
		}
		fee = quotedFee
		minOut = applySlippage(quote, req.SlippageBps)
	}
	data, err := v3RouterABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           req.TokenIn,
		TokenOut:          req.TokenOut,
		Fee:               big.NewInt(fee),
		Recipient:         req.Recipient,
		Deadline:          deadline(time.Now()),
		AmountIn:          req.AmountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return ports.SwapResult{}, fmt.Errorf("pack: %w", err)
	}
	tx, err := c.sendTx(ctx, pancakeV3Router, nil, data, req.GasPrice)
	if err != nil {
		return ports.SwapResult{TxHash: tx}, err
	}
	return ports.SwapResult{EstimatedOut: minOut, TxHash: tx}, nil
}

// feeTier busca el primer pool V3 existente para el par y lo cachea.
func (c *Client) feeTier(ctx context.Context, a, b common.Address) int64 {
	key := pairCacheKey(a, b)
	c.mu.RLock()
	fee, ok := c.feeTiers[key]
	c.mu.RUnlock()
	if ok {
		return fee
	}

	fee = defaultV3FeeTier
	for _, tier := range v3FeeTiers {
		vals, err := c.callABI(ctx, v3FactoryABI, pancakeV3Factory, "getPool", a, b, big.NewInt(tier))
		if err != nil {
			slog.Debug("onchain: getPool failed", "fee", tier, "err", err)
			continue
		}
		if pool, ok := vals[0].(common.Address); ok && pool != (common.Address{}) {
			fee = tier
			break
		}
	}

	c.mu.Lock()
	c.feeTiers[key] = fee
	c.mu.Unlock()
	return fee
}

// tryBuy devuelve el token manager y la cantidad estimada por funds BNB.
func (c *Client) tryBuy(ctx context.Context, token common.Address, funds *big.Int) (common.Address, *big.Int, error) {
	vals, err := c.callABI(ctx, fmHelperABI, fourMemeHelper3, "tryBuy", token, new(big.Int), funds)
	if err != nil {
		return common.Address{}, nil, err
	}
	manager, ok1 := vals[0].(common.Address)
	estimated, ok2 := vals[2].(*big.Int)
	if !ok1 || !ok2 {
		return common.Address{}, nil, fmt.Errorf("unexpected tryBuy result")
	}
	return manager, estimated, nil
}

// trySell devuelve el token manager y los fondos estimados por amount tokens.
func (c *Client) trySell(ctx context.Context, token common.Address, amount *big.Int) (common.Address, *big.Int, error) {
	vals, err := c.callABI(ctx, fmHelperABI, fourMemeHelper3, "trySell", token, amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	manager, ok1 := vals[0].(common.Address)
	funds, ok2 := vals[2].(*big.Int)
	if !ok1 || !ok2 {
		return common.Address{}, nil, fmt.Errorf("unexpected trySell result")
	}
	return manager, funds, nil
}

func (c *Client) tokenManager(ctx context.Context, token common.Address) (common.Address, error) {
	vals, err := c.callABI(ctx, fmHelperABI, fourMemeHelper3, "getTokenInfo", token)
	if err != nil {
		return common.Address{}, err
	}
	manager, ok := vals[1].(common.Address)
	if !ok || manager == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no token manager for %s", token.Hex())
	}
	return manager, nil
}

// buyFourMeme compra en la bonding curve pagando BNB nativo (buyTokenAMAP).
func (c *Client) buyFourMeme(ctx context.Context, req ports.SwapRequest) (ports.SwapResult, error) {
	manager, estimated, err := c.tryBuy(ctx, req.TokenOut, req.AmountIn)
	if err != nil {
		return ports.SwapResult{}, fmt.Errorf("tryBuy: %w", err)
	}
	if manager == (common.Address{}) {
		manager = fourMemeManager2
	}
	minAmount := req.MinOut
	if minAmount == nil {
		minAmount = applySlippage(estimated, req.SlippageBps)
	}
	data, err := fmManagerABI.Pack("buyTokenAMAP", req.TokenOut, req.AmountIn, minAmount)
	if err != nil {
		return ports.SwapResult{}, fmt.Errorf("pack: %w", err)
	}
	tx, err := c.sendTx(ctx, manager, req.AmountIn, data, req.GasPrice)
	if err != nil {
		return ports.SwapResult{TxHash: tx}, err
	}
	return ports.SwapResult{EstimatedOut: minAmount, TxHash: tx}, nil
}

// sellFourMeme vende amount tokens al token manager (sellToken).
func (c *Client) sellFourMeme(ctx context.Context, req ports.SwapRequest) (ports.SwapResult, error) {
	manager, funds, err := c.trySell(ctx, req.TokenIn, req.AmountIn)
	if err != nil {
		return ports.SwapResult{}, fmt.Errorf("trySell: %w", err)
	}
	if manager == (common.Address{}) {
		manager = fourMemeManager2
	}
	data, err := fmManagerABI.Pack("sellToken", req.TokenIn, req.AmountIn)
	if err != nil {
		return ports.SwapResult{}, fmt.Errorf("pack: %w", err)
	}
	tx, err := c.sendTx(ctx, manager, nil, data, req.GasPrice)
	if err != nil {
		return ports.SwapResult{TxHash: tx}, err
	}
	return ports.SwapResult{EstimatedOut: applySlippage(funds, req.SlippageBps), TxHash: tx}, nil
}

// applySlippage devuelve amount × (1 − bps/10000), truncado. bps fuera de 0..10000 se recorta.
func applySlippage(amount *big.Int, bps int64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	bps = min(max(bps, 0), 10_000)
	factor := decimal.NewFromInt(10_000 - bps).Div(decimal.NewFromInt(10_000))
	return decimal.NewFromBigInt(amount, 0).Mul(factor).Truncate(0).BigInt()
}

func deadline(now time.Time) *big.Int {
	return big.NewInt(now.Add(swapDeadline).Unix())
}

// pairCacheKey ordena las direcciones para que (a,b) y (b,a) compartan fee tier.
func pairCacheKey(a, b common.Address) string {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return a.Hex() + b.Hex()
}
