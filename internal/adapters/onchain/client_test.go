package onchain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeRPC responde eth_call / eth_getBalance con handlers por selector.
func fakeRPC(t *testing.T, calls map[string][]byte, balance *big.Int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}

		var result any
		switch req.Method {
		case "eth_call":
			var msg struct {
				Input hexutil.Bytes `json:"input"`
				Data  hexutil.Bytes `json:"data"`
			}
			assert.NoError(t, json.Unmarshal(req.Params[0], &msg))
			data := msg.Input
			if len(data) == 0 {
				data = msg.Data
			}
			out, ok := calls[hexutil.Encode(data[:4])]
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32000,"message":"execution reverted"}}`))
				return
			}
			result = hexutil.Encode(out)
		case "eth_getBalance":
			result = hexutil.EncodeBig(balance)
		default:
			t.Errorf("unexpected rpc method %s", req.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Config{RPCURL: srv.URL, PrivateKey: testKey, ChainID: 56, RatePerSec: 1000, Burst: 100})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClient_OwnerFromKey(t *testing.T) {
	srv := fakeRPC(t, nil, nil)
	defer srv.Close()

	c := newTestClient(t, srv)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), c.Owner())
	assert.Equal(t, WBNBAddress, c.WBNB())
}

func TestClient_BalancesAndQuote(t *testing.T) {
	balanceOut, err := erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	amountsOut, err := v2RouterABI.Methods["getAmountsOut"].Outputs.Pack([]*big.Int{big.NewInt(100), big.NewInt(250)})
	require.NoError(t, err)

	srv := fakeRPC(t, map[string][]byte{
		hexutil.Encode(erc20ABI.Methods["balanceOf"].ID):        balanceOut,
		hexutil.Encode(v2RouterABI.Methods["getAmountsOut"].ID): amountsOut,
	}, big.NewInt(7_000))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()
	token := common.HexToAddress("0xcc")

	bal, err := c.BalanceOf(ctx, token, c.Owner())
	require.NoError(t, err)
	assert.Equal(t, "42", bal.String())

	native, err := c.NativeBalance(ctx, c.Owner())
	require.NoError(t, err)
	assert.Equal(t, "7000", native.String())

	out, err := c.Quote(ctx, domain.VenueV2, WBNBAddress, token, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, "250", out.String())
}

func TestClient_RevertedCallIsError(t *testing.T) {
	srv := fakeRPC(t, map[string][]byte{}, nil)
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Allowance(context.Background(), common.HexToAddress("0xcc"), c.Owner(), pancakeV2Router)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onchain.Client.Allowance")
}

func TestClient_FourMemeSpendersFallBackToManager2(t *testing.T) {
	srv := fakeRPC(t, map[string][]byte{}, nil)
	defer srv.Close()

	c := newTestClient(t, srv)
	spenders, err := c.Spenders(context.Background(), domain.VenueFourMeme, common.HexToAddress("0xcc"))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{fourMemeManager2, fourMemeHelper3}, spenders)

	spenders, err = c.Spenders(context.Background(), domain.VenueV3, common.HexToAddress("0xcc"))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{pancakeV3Router}, spenders)
}

func TestClient_FeeTierDetectionIsCached(t *testing.T) {
	var getPoolCalls int
	pool, err := v3FactoryABI.Methods["getPool"].Outputs.Pack(common.HexToAddress("0x1234"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		getPoolCalls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": hexutil.Encode(pool)})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	a, b := common.HexToAddress("0xaa"), common.HexToAddress("0xbb")

	assert.Equal(t, int64(100), c.feeTier(context.Background(), a, b), "first existing pool wins")
	assert.Equal(t, int64(100), c.feeTier(context.Background(), b, a))
	assert.Equal(t, 1, getPoolCalls)
}

func TestClient_SwapRejectsZeroAmount(t *testing.T) {
	srv := fakeRPC(t, nil, nil)
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Swap(context.Background(), swapReq(domain.VenueV2, nil))
	require.Error(t, err)
	_, err = c.Swap(context.Background(), swapReq(domain.VenueV2, big.NewInt(0)))
	require.Error(t, err)
}

func TestParsePrivateKey(t *testing.T) {
	_, err := parsePrivateKey("")
	assert.ErrorContains(t, err, "not configured")

	_, err = parsePrivateKey("0xzz")
	assert.ErrorContains(t, err, "invalid private key")

	k, err := parsePrivateKey(" " + strings.TrimPrefix(testKey, "0x") + "\n")
	require.NoError(t, err)
	assert.NotNil(t, k)
}

func TestApplySlippage(t *testing.T) {
	tests := []struct {
		name   string
		amount *big.Int
		bps    int64
		want   string
	}{
		{"one percent", big.NewInt(1_000_000), 100, "990000"},
		{"truncates", big.NewInt(999), 150, "984"},
		{"zero bps", big.NewInt(500), 0, "500"},
		{"negative bps clamped", big.NewInt(500), -10, "500"},
		{"full slippage", big.NewInt(500), 20_000, "0"},
		{"nil amount", nil, 100, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applySlippage(tt.amount, tt.bps).String())
		})
	}
}

func TestPackTupleCalls(t *testing.T) {
	_, err := v3RouterABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           WBNBAddress,
		TokenOut:          common.HexToAddress("0xcc"),
		Fee:               big.NewInt(2500),
		Recipient:         common.HexToAddress("0xdd"),
		Deadline:          deadline(time.Unix(1_700_000_000, 0)),
		AmountIn:          big.NewInt(1),
		AmountOutMinimum:  big.NewInt(0),
		SqrtPriceLimitX96: new(big.Int),
	})
	require.NoError(t, err)

	_, err = v3QuoterABI.Pack("quoteExactInputSingle", quoteExactInputSingleParams{
		TokenIn:           WBNBAddress,
		TokenOut:          common.HexToAddress("0xcc"),
		AmountIn:          big.NewInt(1),
		Fee:               big.NewInt(500),
		SqrtPriceLimitX96: new(big.Int),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1_700_000_300), deadline(time.Unix(1_700_000_000, 0)).Int64())
}

func TestPairCacheKeyIsOrderIndependent(t *testing.T) {
	a, b := common.HexToAddress("0x01"), common.HexToAddress("0x02")
	assert.Equal(t, pairCacheKey(a, b), pairCacheKey(b, a))
	assert.NotEqual(t, pairCacheKey(a, a), pairCacheKey(a, b))
}

func swapReq(venue domain.Venue, amount *big.Int) ports.SwapRequest {
	return ports.SwapRequest{Venue: venue, TokenIn: WBNBAddress, TokenOut: common.HexToAddress("0xcc"), AmountIn: amount}
}
