// Package onchain implementa los puertos de ejecución contra BSC: swaps en
// PancakeSwap V2/V3 y FourMeme, balances y allowances ERC20 y wrap de BNB.
package onchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

const (
	gasPriceUpdateInterval = time.Minute
	receiptPollInterval    = time.Second
	fallbackGasPriceWei    = 1_000_000_000 // 1 gwei
)

// Config configura el cliente.
type Config struct {
	RPCURL         string
	PrivateKey     string // hex, con o sin 0x
	ChainID        int64
	RatePerSec     float64
	Burst          int
	ReceiptTimeout time.Duration
	// GasPrice devuelve el precio a usar en cada tx (max_gwei). nil = SuggestGasPrice cacheado.
	GasPrice func() *big.Int
}

// Client implements ports.ExecutionAdapter and ports.Wrapper on BSC.
type Client struct {
	client   *ethclient.Client
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	limiter  *rate.Limiter
	receipt  time.Duration
	gasPrice func() *big.Int

	// txMu serializa nonce + envío: el worker de allowances y el trader firman en paralelo.
	txMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
	feeTiers     map[string]int64
}

// NewClient conecta con el RPC y carga la wallet.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	key, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewClient: %w", err)
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewClient: dial rpc %s: %w", cfg.RPCURL, err)
	}

	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 60 * time.Second
	}

	c := &Client{
		client:   ec,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(cfg.ChainID),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		receipt:  cfg.ReceiptTimeout,
		gasPrice: cfg.GasPrice,
		feeTiers: make(map[string]int64),
	}
	slog.Info("onchain: connected", "rpc", cfg.RPCURL, "chain_id", cfg.ChainID, "wallet", c.address.Hex())
	return c, nil
}

// Close cierra la conexión RPC.
func (c *Client) Close() {
	c.client.Close()
}

// Owner devuelve la dirección de la wallet.
func (c *Client) Owner() common.Address {
	return c.address
}

// WBNB devuelve la dirección del token WBNB.
func (c *Client) WBNB() common.Address {
	return WBNBAddress
}

// call ejecuta un eth_call respetando el rate limit.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.client.CallContract(ctx, ethereum.CallMsg{From: c.address, To: &to, Data: data}, nil)
}

// callABI empaqueta, llama y desempaqueta un método de solo lectura.
func (c *Client) callABI(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.call(ctx, to, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

// sendTx firma y envía una transacción y espera su receipt.
// Un receipt revertido es un error.
func (c *Client) sendTx(ctx context.Context, to common.Address, value *big.Int, data []byte, gasPrice *big.Int) (string, error) {
	if value == nil {
		value = new(big.Int)
	}
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		gasPrice = c.currentGasPrice(ctx)
	}

	c.txMu.Lock()
	signed, err := c.signAndSend(ctx, to, value, data, gasPrice)
	c.txMu.Unlock()
	if err != nil {
		return "", err
	}

	txHash := signed.Hash().Hex()
	receiptCtx, cancel := context.WithTimeout(ctx, c.receipt)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return txHash, fmt.Errorf("wait receipt %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("tx %s reverted", txHash)
	}
	slog.Debug("onchain: tx confirmed", "tx", txHash, "gas_used", receipt.GasUsed)
	return txHash, nil
}

func (c *Client) signAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte, gasPrice *big.Int) (*types.Transaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Value:    value,
		Data:     data,
	})
	if err != nil {
		// una estimación fallida casi siempre es un revert: no se envía
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	slog.Debug("onchain: tx sent", "to", to.Hex(), "nonce", nonce, "gas", gasLimit, "tx", signed.Hash().Hex())
	return signed, nil
}

// currentGasPrice usa el precio configurado o el sugerido por el nodo, cacheado.
func (c *Client) currentGasPrice(ctx context.Context) *big.Int {
	if c.gasPrice != nil {
		if p := c.gasPrice(); p != nil && p.Sign() > 0 {
			return p
		}
	}

	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()
	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached
	}

	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		slog.Warn("onchain: gas price suggestion failed", "err", err)
		if cached != nil {
			return cached
		}
		return big.NewInt(fallbackGasPriceWei)
	}

	c.mu.Lock()
	c.cachedGasWei = price
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()
	return price
}

// waitForReceipt consulta el receipt hasta que la tx se mine o venza ctx.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			receipt, err := c.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // todavía no minada
			}
			return receipt, nil
		}
	}
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	k := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if k == "" {
		return nil, fmt.Errorf("private key not configured")
	}
	key, err := crypto.HexToECDSA(k)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
