package ports

import (
	"context"
	"math/big"

	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// SwapRequest describe un swap contra un venue.
type SwapRequest struct {
	Venue       domain.Venue
	TokenIn     common.Address // zero address = BNB nativo (FourMeme)
	TokenOut    common.Address // zero address = BNB nativo (FourMeme)
	AmountIn    *big.Int
	MinOut      *big.Int // nil = quote × (1 − SlippageBps/10000)
	SlippageBps int64
	Recipient   common.Address
	GasPrice    *big.Int // nil = precio del adapter
}

// SwapResult es el handle de una transacción confirmada.
type SwapResult struct {
	EstimatedOut *big.Int
	TxHash       string
}

// ExecutionAdapter es el puerto estrecho hacia los venues on-chain.
// Todas las llamadas pueden fallar de forma transitoria (red o revert).
type ExecutionAdapter interface {
	// Owner devuelve la dirección de la wallet que opera.
	Owner() common.Address

	// Quote estima el output de un swap sin ejecutarlo.
	Quote(ctx context.Context, venue domain.Venue, tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, error)

	// Swap ejecuta y espera la confirmación.
	Swap(ctx context.Context, req SwapRequest) (SwapResult, error)

	// BalanceOf devuelve el balance ERC20 de owner.
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// Spenders devuelve los contratos que necesitan allowance para vender token en venue.
	Spenders(ctx context.Context, venue domain.Venue, token common.Address) ([]common.Address, error)

	// Allowance lee la allowance ERC20 de owner hacia spender.
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// Approve envía approve(spender, amount) y espera la confirmación.
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (string, error)
}

// Wrapper convierte BNB nativo a WBNB para los venues V2/V3.
type Wrapper interface {
	WBNB() common.Address
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	Wrap(ctx context.Context, amount *big.Int) (string, error)
}
