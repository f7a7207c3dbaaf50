package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// well-known development mnemonic; first account is funded on every local devnet
const devMnemonic = "test test test test test test test test test test test junk"

var devAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	const pk = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	for _, in := range []string{pk, "0x" + pk, " 0x" + pk + "\n"} {
		signer, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in, err)
		}
		if signer.Address() != devAddress {
			t.Errorf("address = %s, want %s", signer.Address().Hex(), devAddress.Hex())
		}
	}

	if _, err := FromPrivateKeyHex("0xdeadbeef"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestFromMnemonic(t *testing.T) {
	signer, err := FromMnemonic(devMnemonic, "")
	if err != nil {
		t.Fatalf("failed to derive: %v", err)
	}
	if signer.Address() != devAddress {
		t.Errorf("address = %s, want %s", signer.Address().Hex(), devAddress.Hex())
	}

	second, err := FromMnemonic(devMnemonic, "m/44'/60'/0'/0/1")
	if err != nil {
		t.Fatalf("failed to derive index 1: %v", err)
	}
	if second.Address() == devAddress {
		t.Error("different derivation paths produced the same address")
	}

	if _, err := FromMnemonic(devMnemonic, "not/a/path"); err == nil {
		t.Error("expected error for malformed path")
	}
}

func TestSignerFromEnv(t *testing.T) {
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvMnemonic, "")
	if _, err := SignerFromEnv(); err == nil {
		t.Fatal("expected error without credentials")
	}

	t.Setenv(EnvMnemonic, devMnemonic)
	signer, err := SignerFromEnv()
	if err != nil {
		t.Fatalf("mnemonic credential: %v", err)
	}
	if signer.Address() != devAddress {
		t.Errorf("address = %s, want %s", signer.Address().Hex(), devAddress.Hex())
	}

	// private key wins when both are set
	t.Setenv(EnvPrivateKey, "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	signer, err = SignerFromEnv()
	if err != nil {
		t.Fatalf("pk credential: %v", err)
	}
	want := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	if signer.Address() != want {
		t.Errorf("ACCOUNT_PK_SECRET should take precedence: got %s", signer.Address().Hex())
	}
}

func TestSignTxRecoverSender(t *testing.T) {
	signer, _ := GenerateKey()
	chainID := big.NewInt(31)

	to := common.HexToAddress("0xA066d6e20e122deB1139FA3Ae3e96d04578c67B5")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1650,
		To:       &to,
		Gas:      253211,
		GasPrice: big.NewInt(60_000_000),
		Value:    big.NewInt(0),
	})

	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if signed.ChainId().Cmp(chainID) != 0 {
		t.Errorf("chain id = %s, want 31", signed.ChainId())
	}

	from, err := RecoverSender(signed, chainID)
	if err != nil {
		t.Fatalf("failed to recover: %v", err)
	}
	if from != signer.Address() {
		t.Errorf("sender = %s, want %s", from.Hex(), signer.Address().Hex())
	}
}
