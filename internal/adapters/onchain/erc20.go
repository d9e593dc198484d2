package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceOf devuelve el balance ERC20 de owner.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	vals, err := c.callABI(ctx, erc20ABI, token, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("onchain.Client.BalanceOf: %s: %w", token.Hex(), err)
	}
	return firstBig(vals)
}

// Allowance lee la allowance ERC20 de owner hacia spender.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	vals, err := c.callABI(ctx, erc20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("onchain.Client.Allowance: %s: %w", token.Hex(), err)
	}
	return firstBig(vals)
}

// Approve envía approve(spender, amount) y espera la confirmación.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (string, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return "", fmt.Errorf("onchain.Client.Approve: pack: %w", err)
	}
	tx, err := c.sendTx(ctx, token, nil, data, nil)
	if err != nil {
		return tx, fmt.Errorf("onchain.Client.Approve: %s -> %s: %w", token.Hex(), spender.Hex(), err)
	}
	slog.Info("onchain: approval set", "token", token.Hex(), "spender", spender.Hex(), "tx", tx)
	return tx, nil
}

// NativeBalance devuelve el balance de BNB nativo.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	bal, err := c.client.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("onchain.Client.NativeBalance: %w", err)
	}
	return bal, nil
}

// Wrap convierte amount BNB en WBNB (WBNB.deposit con value).
func (c *Client) Wrap(ctx context.Context, amount *big.Int) (string, error) {
	data, err := wbnbABI.Pack("deposit")
	if err != nil {
		return "", fmt.Errorf("onchain.Client.Wrap: pack: %w", err)
	}
	tx, err := c.sendTx(ctx, WBNBAddress, amount, data, nil)
	if err != nil {
		return tx, fmt.Errorf("onchain.Client.Wrap: %w", err)
	}
	return tx, nil
}

func firstBig(vals []any) (*big.Int, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", vals[0])
	}
	return v, nil
}
