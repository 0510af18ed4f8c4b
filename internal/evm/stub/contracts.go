package stub

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolwatch/internal/domain"
	"poolwatch/internal/evm"
)

// TransferLog builds a Transfer log emitted by contract.
func TransferLog(contract, from, to common.Address, value *big.Int, block uint64, index uint, tx common.Hash) types.Log {
	data, err := evm.ERC20ABI.Events["Transfer"].Inputs.NonIndexed().Pack(value)
	if err != nil {
		panic(fmt.Sprintf("pack transfer: %v", err))
	}
	return types.Log{
		Address: contract,
		Topics: []common.Hash{
			evm.TransferEventID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      tx,
	}
}

// PairContract answers token0, token1 and getReserves like a UniswapV2 pair.
func PairContract(token0, token1 common.Address, reserve0, reserve1 *big.Int) CallFunc {
	return func(data []byte) ([]byte, error) {
		switch {
		case isMethod(evm.PairABI, "token0", data):
			return packOutputs(evm.PairABI, "token0", token0)
		case isMethod(evm.PairABI, "token1", data):
			return packOutputs(evm.PairABI, "token1", token1)
		case isMethod(evm.PairABI, "getReserves", data):
			return packOutputs(evm.PairABI, "getReserves", reserve0, reserve1, uint32(0))
		}
		return nil, fmt.Errorf("%w: unknown pair selector %x", domain.ErrDecode, data)
	}
}

// PairKey is an unordered token pair.
type PairKey [2]common.Address

// FactoryContract answers getPair from a fixed table; missing pairs return the zero address.
// Pairs are looked up in both token orders.
func FactoryContract(pairs map[PairKey]common.Address) CallFunc {
	return func(data []byte) ([]byte, error) {
		if !isMethod(evm.FactoryABI, "getPair", data) {
			return nil, fmt.Errorf("%w: unknown factory selector %x", domain.ErrDecode, data)
		}
		args, err := evm.FactoryABI.Methods["getPair"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		a := args[0].(common.Address)
		b := args[1].(common.Address)
		pair, ok := pairs[PairKey{a, b}]
		if !ok {
			pair = pairs[PairKey{b, a}]
		}
		return packOutputs(evm.FactoryABI, "getPair", pair)
	}
}

// HistoryContract answers getHistoricalData with the given series.
func HistoryContract(timestamps, prices []*big.Int) CallFunc {
	return func(data []byte) ([]byte, error) {
		if !isMethod(evm.HistoryABI, "getHistoricalData", data) {
			return nil, fmt.Errorf("%w: unknown history selector %x", domain.ErrDecode, data)
		}
		return packOutputs(evm.HistoryABI, "getHistoricalData", timestamps, prices)
	}
}

func isMethod(contract abi.ABI, name string, data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], contract.Methods[name].ID)
}

func packOutputs(contract abi.ABI, name string, values ...interface{}) ([]byte, error) {
	return contract.Methods[name].Outputs.Pack(values...)
}
