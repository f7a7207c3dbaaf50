package contracts

import (
	"context"
	"embed"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/*.json
var abiFS embed.FS

// Parsed ABIs. The token ABI is ERC20 plus the deposit/withdraw extension of
// the wrap token; plain ERC20 tokens simply never see those methods called.
var (
	TokenABI             = mergeABI(mustLoad("erc20.json"), mustLoad("wrbtc.json"))
	ExchangeABI          = mustLoad("dex.json")
	GovernorABI          = mustLoad("governor.json")
	CommissionManagerABI = mustLoad("commission_manager.json")
)

func mustLoad(name string) abi.ABI {
	data, err := abiFS.ReadFile("abi/" + name)
	if err != nil {
		panic(fmt.Sprintf("contracts: missing embedded abi %s: %v", name, err))
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		panic(fmt.Sprintf("contracts: invalid embedded abi %s: %v", name, err))
	}
	return parsed
}

func mergeABI(parts ...abi.ABI) abi.ABI {
	out := abi.ABI{
		Methods: make(map[string]abi.Method),
		Events:  make(map[string]abi.Event),
		Errors:  make(map[string]abi.Error),
	}
	for _, p := range parts {
		for k, m := range p.Methods {
			out.Methods[k] = m
		}
		for k, e := range p.Events {
			out.Events[k] = e
		}
		for k, e := range p.Errors {
			out.Errors[k] = e
		}
	}
	return out
}

// Caller is the read side of the node connection (satisfied by *ethclient.Client).
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// call packs method, runs eth_call against the latest block and unpacks the outputs.
func call(ctx context.Context, c Caller, parsed *abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s returned no data (no contract deployed?)", method, to.Hex())
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}

// callInto is call for multi-output methods, copied into a struct with abi tags.
func callInto(ctx context.Context, c Caller, parsed *abi.ABI, to common.Address, out interface{}, method string, args ...interface{}) error {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("%s on %s returned no data (no contract deployed?)", method, to.Hex())
	}
	if err := parsed.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return nil
}

func bigResult(values []interface{}, method string) (*big.Int, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: expected 1 output, got %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, values[0])
	}
	return v, nil
}
