package onchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contratos en BSC mainnet.
var (
	WBNBAddress       = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	pancakeV2Router   = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	pancakeV3Router   = common.HexToAddress("0x1b81D678ffb9C0263b24A97847620C99d213eB14")
	pancakeV3QuoterV2 = common.HexToAddress("0xB048Bbc1Ee6b733FFfCFb9e9CeF7375518e25997")
	pancakeV3Factory  = common.HexToAddress("0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865")
	fourMemeHelper3   = common.HexToAddress("0xF251F83e40a78868FcfA3FA4599Dad6494E46034")
	fourMemeManager2  = common.HexToAddress("0x5c952063c7fc8610FFDB798152D69F0B9550762b")
	v3FeeTiers        = []int64{100, 500, 800, 2500, 10000}
	defaultV3FeeTier  = int64(500)
)

// Contract ABIs
var (
	erc20ABI     abi.ABI
	wbnbABI      abi.ABI
	v2RouterABI  abi.ABI
	v3RouterABI  abi.ABI
	v3QuoterABI  abi.ABI
	v3FactoryABI abi.ABI
	fmHelperABI  abi.ABI
	fmManagerABI abi.ABI
)

func mustABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}

func init() {
	erc20ABI = mustABI("erc20", `[
		{"name":"balanceOf","type":"function","stateMutability":"view",
		 "inputs":[{"name":"owner","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view",
		 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
		 "outputs":[{"name":"","type":"bool"}]}
	]`)

	wbnbABI = mustABI("wbnb", `[
		{"name":"deposit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]}
	]`)

	v2RouterABI = mustABI("v2 router", `[
		{"name":"getAmountsOut","type":"function","stateMutability":"view",
		 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
		 "outputs":[{"name":"amounts","type":"uint256[]"}]},
		{"name":"swapExactTokensForTokensSupportingFeeOnTransferTokens","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
		           {"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
		 "outputs":[]}
	]`)

	v3RouterABI = mustABI("v3 router", `[
		{"name":"exactInputSingle","type":"function","stateMutability":"payable",
		 "inputs":[{"name":"params","type":"tuple","components":[
			{"name":"tokenIn","type":"address"},
			{"name":"tokenOut","type":"address"},
			{"name":"fee","type":"uint24"},
			{"name":"recipient","type":"address"},
			{"name":"deadline","type":"uint256"},
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOutMinimum","type":"uint256"},
			{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
		 "outputs":[{"name":"amountOut","type":"uint256"}]}
	]`)

	v3QuoterABI = mustABI("v3 quoter", `[
		{"name":"quoteExactInputSingle","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"params","type":"tuple","components":[
			{"name":"tokenIn","type":"address"},
			{"name":"tokenOut","type":"address"},
			{"name":"amountIn","type":"uint256"},
			{"name":"fee","type":"uint24"},
			{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
		 "outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96After","type":"uint160"},
		            {"name":"initializedTicksCrossed","type":"uint32"},{"name":"gasEstimate","type":"uint256"}]}
	]`)

	v3FactoryABI = mustABI("v3 factory", `[
		{"name":"getPool","type":"function","stateMutability":"view",
		 "inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],
		 "outputs":[{"name":"pool","type":"address"}]}
	]`)

	fmHelperABI = mustABI("fourmeme helper3", `[
		{"name":"getTokenInfo","type":"function","stateMutability":"view",
		 "inputs":[{"name":"token","type":"address"}],
		 "outputs":[{"name":"version","type":"uint256"},{"name":"tokenManager","type":"address"},{"name":"quote","type":"address"},
		            {"name":"lastPrice","type":"uint256"},{"name":"tradingFeeRate","type":"uint256"},{"name":"minTradingFee","type":"uint256"},
		            {"name":"launchTime","type":"uint256"},{"name":"offers","type":"uint256"},{"name":"maxOffers","type":"uint256"},
		            {"name":"funds","type":"uint256"},{"name":"maxFunds","type":"uint256"},{"name":"liquidityAdded","type":"bool"}]},
		{"name":"tryBuy","type":"function","stateMutability":"view",
		 "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"funds","type":"uint256"}],
		 "outputs":[{"name":"tokenManager","type":"address"},{"name":"quote","type":"address"},{"name":"estimatedAmount","type":"uint256"},
		            {"name":"estimatedCost","type":"uint256"},{"name":"estimatedFee","type":"uint256"},{"name":"amountMsgValue","type":"uint256"},
		            {"name":"amountApproval","type":"uint256"},{"name":"amountFunds","type":"uint256"}]},
		{"name":"trySell","type":"function","stateMutability":"view",
		 "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],
		 "outputs":[{"name":"tokenManager","type":"address"},{"name":"quote","type":"address"},
		            {"name":"funds","type":"uint256"},{"name":"fee","type":"uint256"}]}
	]`)

	fmManagerABI = mustABI("fourmeme token manager2", `[
		{"name":"buyTokenAMAP","type":"function","stateMutability":"payable",
		 "inputs":[{"name":"token","type":"address"},{"name":"funds","type":"uint256"},{"name":"minAmount","type":"uint256"}],
		 "outputs":[]},
		{"name":"sellToken","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],
		 "outputs":[]}
	]`)
}
