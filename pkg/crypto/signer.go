package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// Environment variables holding the signing credential. The credential is
// never part of a network profile.
const (
	EnvPrivateKey = "ACCOUNT_PK_SECRET"
	EnvMnemonic   = "ACCOUNT_MNEMONIC"
	EnvHDPath     = "ACCOUNT_HD_PATH"

	DefaultHDPath = "m/44'/60'/0'/0/0"
)

// Signer holds the account key used to sign transactions (secp256k1).
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateKey creates a new random secp256k1 key pair
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return fromECDSA(privateKey)
}

// FromPrivateKeyHex creates a Signer from a hex-encoded private key
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return fromECDSA(privateKey)
}

// FromMnemonic derives the account at path from a BIP-39 mnemonic.
func FromMnemonic(mnemonic, path string) (*Signer, error) {
	if path == "" {
		path = DefaultHDPath
	}
	wallet, err := hdwallet.NewFromMnemonic(strings.TrimSpace(mnemonic))
	if err != nil {
		return nil, fmt.Errorf("failed to load mnemonic: %w", err)
	}
	dp, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse derivation path %q: %w", path, err)
	}
	account, err := wallet.Derive(dp, false)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account: %w", err)
	}
	privateKey, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("failed to export derived key: %w", err)
	}
	return fromECDSA(privateKey)
}

// SignerFromEnv builds the signer from ACCOUNT_PK_SECRET, falling back to
// ACCOUNT_MNEMONIC (+ ACCOUNT_HD_PATH).
func SignerFromEnv() (*Signer, error) {
	if pk := os.Getenv(EnvPrivateKey); pk != "" {
		return FromPrivateKeyHex(pk)
	}
	if mnemonic := os.Getenv(EnvMnemonic); mnemonic != "" {
		return FromMnemonic(mnemonic, os.Getenv(EnvHDPath))
	}
	return nil, fmt.Errorf("no signing credential: set %s or %s", EnvPrivateKey, EnvMnemonic)
}

func fromECDSA(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// Address returns the Ethereum address derived from the public key
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs tx for chainID with the latest signer the chain supports.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// RecoverSender returns the address that signed tx.
func RecoverSender(tx *types.Transaction, chainID *big.Int) (common.Address, error) {
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover sender: %w", err)
	}
	return from, nil
}
