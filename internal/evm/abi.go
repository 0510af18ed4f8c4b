package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"poolwatch/internal/domain"
)

const erc20ABIJSON = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"from","type":"address"},
		{"indexed":true,"internalType":"address","name":"to","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}
	],"name":"Transfer","type":"event"}
]`

const factoryABIJSON = `[
	{"constant":true,"inputs":[
		{"name":"tokenA","type":"address"},
		{"name":"tokenB","type":"address"}
	],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"type":"function"}
]`

const pairABIJSON = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[
		{"name":"reserve0","type":"uint112"},
		{"name":"reserve1","type":"uint112"},
		{"name":"blockTimestampLast","type":"uint32"}
	],"type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

const historyABIJSON = `[
	{"constant":true,"inputs":[],"name":"getHistoricalData","outputs":[
		{"name":"timestamps","type":"uint256[]"},
		{"name":"prices","type":"uint256[]"}
	],"type":"function"}
]`

// Parsed contract ABIs.
var (
	ERC20ABI   = mustParseABI(erc20ABIJSON)
	FactoryABI = mustParseABI(factoryABIJSON)
	PairABI    = mustParseABI(pairABIJSON)
	HistoryABI = mustParseABI(historyABIJSON)
)

// TransferEventID is topic0 of Transfer(address,address,uint256).
var TransferEventID = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// DecodedTransfer is the raw content of a Transfer log.
type DecodedTransfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// DecodeTransfer decodes a Transfer log. Returns domain.ErrDecode when the log
// is not a standard ERC-20 Transfer (wrong topic0, missing indexed topics, bad data).
func DecodeTransfer(l types.Log) (DecodedTransfer, error) {
	if len(l.Topics) != 3 || l.Topics[0] != TransferEventID {
		return DecodedTransfer{}, fmt.Errorf("%w: log %s#%d is not a Transfer event", domain.ErrDecode, l.TxHash.Hex(), l.Index)
	}

	values, err := ERC20ABI.Unpack("Transfer", l.Data)
	if err != nil {
		return DecodedTransfer{}, fmt.Errorf("%w: unpack Transfer data: %v", domain.ErrDecode, err)
	}
	if len(values) != 1 {
		return DecodedTransfer{}, fmt.Errorf("%w: Transfer data has %d values", domain.ErrDecode, len(values))
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return DecodedTransfer{}, fmt.Errorf("%w: Transfer value has type %T", domain.ErrDecode, values[0])
	}

	return DecodedTransfer{
		From:  common.BytesToAddress(l.Topics[1].Bytes()),
		To:    common.BytesToAddress(l.Topics[2].Bytes()),
		Value: value,
	}, nil
}

// Unpack decodes a call result, wrapping failures with domain.ErrDecode.
func Unpack(contract abi.ABI, method string, data []byte) ([]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s returned empty data", domain.ErrDecode, method)
	}
	values, err := contract.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", domain.ErrDecode, method, err)
	}
	return values, nil
}
