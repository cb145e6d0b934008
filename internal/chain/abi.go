package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// Aave v3 Pool。getReserveData 返回的 ReserveData 是静态 tuple，编码与逐字段展开一致，这里直接按展开写。
const poolABIJSON = `[
  {"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"name":"supply","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"asset","type":"address"}],"name":"getReserveData","outputs":[
    {"name":"configuration","type":"uint256"},
    {"name":"liquidityIndex","type":"uint128"},
    {"name":"currentLiquidityRate","type":"uint128"},
    {"name":"variableBorrowIndex","type":"uint128"},
    {"name":"currentVariableBorrowRate","type":"uint128"},
    {"name":"currentStableBorrowRate","type":"uint128"},
    {"name":"lastUpdateTimestamp","type":"uint40"},
    {"name":"id","type":"uint16"},
    {"name":"aTokenAddress","type":"address"},
    {"name":"stableDebtTokenAddress","type":"address"},
    {"name":"variableDebtTokenAddress","type":"address"},
    {"name":"interestRateStrategyAddress","type":"address"},
    {"name":"accruedToTreasury","type":"uint128"},
    {"name":"unbacked","type":"uint128"},
    {"name":"isolationModeTotalDebt","type":"uint128"}
  ],"stateMutability":"view","type":"function"}
]`

// aTokenAddress 在 getReserveData 输出中的位置
const reserveATokenIndex = 8

var (
	erc20ABI = mustABI(erc20ABIJSON)
	poolABI  = mustABI(poolABIJSON)
)

func mustABI(def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("chain: bad ABI: " + err.Error())
	}
	return a
}
