package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/dexkit/pkg/dexerr"
)

// Governor executes changer contracts. Only its owner may call executeChange.
type Governor struct {
	address common.Address
	caller  Caller
}

func NewGovernor(address common.Address, caller Caller) *Governor {
	return &Governor{address: address, caller: caller}
}

func (g *Governor) Address() common.Address { return g.address }

func (g *Governor) ExecuteChange(changer common.Address) (TxRequest, error) {
	fields := dexerr.Fields{"governor": g.address.Hex(), "changer": changer.Hex()}
	if g.address == (common.Address{}) {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "executeChange", Reason: "network has no governor address", Fields: fields}
	}
	if changer == (common.Address{}) {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "executeChange", Reason: "zero changer address", Fields: fields}
	}
	data, err := GovernorABI.Pack("executeChange", changer)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack executeChange: %w", err)
	}
	to := g.address
	return TxRequest{Method: "executeChange", To: &to, Data: data, Fields: fields}, nil
}

func (g *Governor) Owner(ctx context.Context) (common.Address, error) {
	values, err := call(ctx, g.caller, &GovernorABI, g.address, "owner")
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("owner: unexpected output type %T", values[0])
	}
	return owner, nil
}

// Artifact is a compiled contract as written by the build tooling
// (contractName, abi and creation bytecode).
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

type artifactJSON struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return ParseArtifact(data)
}

func ParseArtifact(data []byte) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse artifact: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return nil, fmt.Errorf("artifact %s: invalid abi: %w", raw.ContractName, err)
	}
	code, err := hexutil.Decode(raw.Bytecode)
	if err != nil || len(code) == 0 {
		return nil, fmt.Errorf("artifact %s: missing or invalid bytecode", raw.ContractName)
	}
	return &Artifact{Name: raw.ContractName, ABI: parsed, Bytecode: code}, nil
}

// DeployTx builds the contract-creation request: bytecode followed by the
// packed constructor arguments.
func (a *Artifact) DeployTx(args ...interface{}) (TxRequest, error) {
	if len(a.ABI.Constructor.Inputs) != len(args) {
		return TxRequest{}, &dexerr.InvalidOrderError{
			Op:     "deploy " + a.Name,
			Reason: fmt.Sprintf("constructor takes %d arguments, got %d", len(a.ABI.Constructor.Inputs), len(args)),
		}
	}
	coerced := make([]interface{}, len(args))
	for i, arg := range args {
		coerced[i] = coerceUint(a.ABI.Constructor.Inputs[i].Type, arg)
	}
	packed, err := a.ABI.Pack("", coerced...)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack %s constructor: %w", a.Name, err)
	}
	data := make([]byte, 0, len(a.Bytecode)+len(packed))
	data = append(data, a.Bytecode...)
	data = append(data, packed...)
	return TxRequest{Method: "deploy " + a.Name, Data: data}, nil
}

// coerceUint adapts *big.Int arguments to the narrower Go types the abi
// packer wants for uint8..uint64 slots, so callers need not know whether a
// changer was compiled with uint64 or uint256 fields.
func coerceUint(t abi.Type, v interface{}) interface{} {
	b, ok := v.(*big.Int)
	if !ok || t.T != abi.UintTy || t.Size > 64 || !b.IsUint64() {
		return v
	}
	u := b.Uint64()
	switch t.Size {
	case 8:
		return uint8(u)
	case 16:
		return uint16(u)
	case 32:
		return uint32(u)
	case 64:
		return u
	}
	return v
}

// DeployMaxOrderLifespanChanger prepares MaxOrderLifespanChanger(dex, maxOrderLifespan).
func DeployMaxOrderLifespanChanger(a *Artifact, dex common.Address, maxOrderLifespan uint64) (TxRequest, error) {
	if maxOrderLifespan == 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "deploy " + a.Name, Reason: "max order lifespan must be > 0"}
	}
	req, err := a.DeployTx(dex, new(big.Int).SetUint64(maxOrderLifespan))
	if err != nil {
		return TxRequest{}, err
	}
	req.Fields = dexerr.Fields{"dex": dex.Hex(), "maxOrderLifespan": fmt.Sprint(maxOrderLifespan)}
	return req, nil
}

// TokenPairListing is one row of AddTokenPairChanger's parallel arrays.
type TokenPairListing struct {
	Base           common.Address
	Secondary      common.Address
	InitPrice      *big.Int
	PricePrecision *big.Int
}

// DeployAddTokenPairChanger prepares AddTokenPairChanger(dex, bases, secondaries, initPrices, pricePrecisions).
func DeployAddTokenPairChanger(a *Artifact, dex common.Address, pairs []TokenPairListing) (TxRequest, error) {
	if len(pairs) == 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "deploy " + a.Name, Reason: "no pairs to add"}
	}
	var (
		bases       = make([]common.Address, len(pairs))
		secondaries = make([]common.Address, len(pairs))
		prices      = make([]*big.Int, len(pairs))
		precisions  = make([]*big.Int, len(pairs))
	)
	for i, p := range pairs {
		if err := validatePair("deploy "+a.Name, p.Base, p.Secondary, pairFields(p.Base, p.Secondary)); err != nil {
			return TxRequest{}, err
		}
		if p.InitPrice == nil || p.InitPrice.Sign() <= 0 || p.PricePrecision == nil || p.PricePrecision.Sign() <= 0 {
			return TxRequest{}, &dexerr.InvalidOrderError{
				Op: "deploy " + a.Name, Reason: "init price and precision must be > 0", Fields: pairFields(p.Base, p.Secondary),
			}
		}
		bases[i], secondaries[i], prices[i], precisions[i] = p.Base, p.Secondary, p.InitPrice, p.PricePrecision
	}
	req, err := a.DeployTx(dex, bases, secondaries, prices, precisions)
	if err != nil {
		return TxRequest{}, err
	}
	req.Fields = dexerr.Fields{"dex": dex.Hex(), "pairs": fmt.Sprint(len(pairs))}
	return req, nil
}

// DeploySettingChanger prepares a changer whose constructor is (target, value).
// The rate, amount and tick changers take a *big.Int; BeneficiaryAddressChanger
// takes a common.Address. target is the exchange or the commission manager,
// whichever contract the changer writes to.
func DeploySettingChanger(a *Artifact, target common.Address, value interface{}) (TxRequest, error) {
	op := "deploy " + a.Name
	inputs := a.ABI.Constructor.Inputs
	if len(inputs) != 2 || inputs[0].Type.T != abi.AddressTy {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: op, Reason: "constructor is not (address, value)"}
	}
	fields := dexerr.Fields{"target": target.Hex()}
	if target == (common.Address{}) {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: op, Reason: "zero target address", Fields: fields}
	}
	slot := inputs[1]
	name := strings.TrimPrefix(slot.Name, "_")
	switch v := value.(type) {
	case *big.Int:
		if slot.Type.T != abi.UintTy {
			return TxRequest{}, &dexerr.InvalidOrderError{Op: op, Reason: "constructor wants " + slot.Type.String() + ", got an integer", Fields: fields}
		}
		if v == nil || v.Sign() < 0 {
			return TxRequest{}, &dexerr.InvalidOrderError{Op: op, Reason: name + " must be >= 0", Fields: fields}
		}
		fields[name] = v.String()
	case common.Address:
		if slot.Type.T != abi.AddressTy {
			return TxRequest{}, &dexerr.InvalidOrderError{Op: op, Reason: "constructor wants " + slot.Type.String() + ", got an address", Fields: fields}
		}
		if v == (common.Address{}) {
			return TxRequest{}, &dexerr.InvalidOrderError{Op: op, Reason: "zero " + name, Fields: fields}
		}
		fields[name] = v.Hex()
	default:
		return TxRequest{}, fmt.Errorf("%s: unsupported value type %T", op, value)
	}
	req, err := a.DeployTx(target, value)
	if err != nil {
		return TxRequest{}, err
	}
	req.Fields = fields
	return req, nil
}

// DeployPairChanger prepares TokenPairEnabler or TokenPairDisabler(dex, base, secondary).
func DeployPairChanger(a *Artifact, dex, base, secondary common.Address) (TxRequest, error) {
	fields := pairFields(base, secondary)
	if err := validatePair("deploy "+a.Name, base, secondary, fields); err != nil {
		return TxRequest{}, err
	}
	req, err := a.DeployTx(dex, base, secondary)
	if err != nil {
		return TxRequest{}, err
	}
	fields["dex"] = dex.Hex()
	req.Fields = fields
	return req, nil
}

// DeployLastClosingPriceChanger prepares LastClosingPriceChanger(dex, base, secondary, price).
func DeployLastClosingPriceChanger(a *Artifact, dex, base, secondary common.Address, price *big.Int) (TxRequest, error) {
	op := "deploy " + a.Name
	fields := pairFields(base, secondary)
	if err := validatePair(op, base, secondary, fields); err != nil {
		return TxRequest{}, err
	}
	if price == nil || price.Sign() <= 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: op, Reason: "price must be > 0", Fields: fields}
	}
	req, err := a.DeployTx(dex, base, secondary, price)
	if err != nil {
		return TxRequest{}, err
	}
	fields["dex"] = dex.Hex()
	fields["price"] = price.String()
	req.Fields = fields
	return req, nil
}

// GovernanceSet is the set of roles ChangerGovernanceSet hands over.
type GovernanceSet struct {
	Governor         common.Address
	Stopper          common.Address
	UpgradeDelegator common.Address
	ProxyAdmin       common.Address
}

// DeployGovernanceSetChanger prepares ChangerGovernanceSet(dex, governor, stopper, upgradeDelegator, proxyAdmin).
func DeployGovernanceSetChanger(a *Artifact, dex common.Address, set GovernanceSet) (TxRequest, error) {
	fields := dexerr.Fields{
		"dex":              dex.Hex(),
		"governor":         set.Governor.Hex(),
		"stopper":          set.Stopper.Hex(),
		"upgradeDelegator": set.UpgradeDelegator.Hex(),
		"proxyAdmin":       set.ProxyAdmin.Hex(),
	}
	for _, addr := range []common.Address{set.Governor, set.Stopper, set.UpgradeDelegator, set.ProxyAdmin} {
		if addr == (common.Address{}) {
			return TxRequest{}, &dexerr.InvalidOrderError{Op: "deploy " + a.Name, Reason: "every governance role needs an address", Fields: fields}
		}
	}
	req, err := a.DeployTx(dex, set.Governor, set.Stopper, set.UpgradeDelegator, set.ProxyAdmin)
	if err != nil {
		return TxRequest{}, err
	}
	req.Fields = fields
	return req, nil
}

// CommissionManager exposes the read side of the commission manager.
type CommissionManager struct {
	address common.Address
	caller  Caller
}

func NewCommissionManager(address common.Address, caller Caller) *CommissionManager {
	return &CommissionManager{address: address, caller: caller}
}

type CommissionRates struct {
	Beneficiary            common.Address `json:"beneficiaryAddress"`
	CommissionRate         *big.Int       `json:"commissionRate"`
	CancelationPenaltyRate *big.Int       `json:"cancelationPenaltyRate"`
	ExpirationPenaltyRate  *big.Int       `json:"expirationPenaltyRate"`
}

func (c *CommissionManager) Rates(ctx context.Context) (CommissionRates, error) {
	var out CommissionRates
	values, err := call(ctx, c.caller, &CommissionManagerABI, c.address, "beneficiaryAddress")
	if err != nil {
		return out, err
	}
	beneficiary, ok := values[0].(common.Address)
	if !ok {
		return out, fmt.Errorf("beneficiaryAddress: unexpected output type %T", values[0])
	}
	out.Beneficiary = beneficiary

	for method, dst := range map[string]**big.Int{
		"commissionRate":         &out.CommissionRate,
		"cancelationPenaltyRate": &out.CancelationPenaltyRate,
		"expirationPenaltyRate":  &out.ExpirationPenaltyRate,
	} {
		values, err := call(ctx, c.caller, &CommissionManagerABI, c.address, method)
		if err != nil {
			return out, err
		}
		if *dst, err = bigResult(values, method); err != nil {
			return out, err
		}
	}
	return out, nil
}

// ChargedCommissions is the commission accrued in token and not yet withdrawn.
func (c *CommissionManager) ChargedCommissions(ctx context.Context, token common.Address) (*big.Int, error) {
	values, err := call(ctx, c.caller, &CommissionManagerABI, c.address, "exchangeCommissions", token)
	if err != nil {
		return nil, err
	}
	return bigResult(values, "exchangeCommissions")
}
