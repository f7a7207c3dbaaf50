package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestChecksums(t *testing.T) {
	wrbtc := common.HexToAddress("0x09b6ca5e4496238a1f176aea6bb607db96c2286e")

	if got := EIP55(wrbtc.Bytes()); got != "0x09B6Ca5E4496238a1F176aEA6bB607db96C2286E" {
		t.Errorf("EIP55 = %s", got)
	}
	if got := EIP1191(wrbtc.Bytes(), big.NewInt(31)); got != "0x09b6ca5E4496238A1F176aEa6Bb607DB96c2286E" {
		t.Errorf("EIP1191(31) = %s", got)
	}
	if got := EIP1191(wrbtc.Bytes(), big.NewInt(30)); got != "0x09B6Ca5e4496238A1F176aEA6bb607db96c2286E" {
		t.Errorf("EIP1191(30) = %s", got)
	}
	// go-ethereum agrees on the plain EIP-55 form
	if EIP55(wrbtc.Bytes()) != wrbtc.Hex() {
		t.Errorf("EIP55 disagrees with common.Address.Hex(): %s", wrbtc.Hex())
	}
}

func TestParseAddress(t *testing.T) {
	testnet := big.NewInt(31)

	tests := []struct {
		name    string
		in      string
		chainID *big.Int
		wantErr bool
	}{
		{"eip55", "0x09B6Ca5E4496238a1F176aEA6bB607db96C2286E", testnet, false},
		{"eip1191 testnet", "0x09b6ca5E4496238A1F176aEa6Bb607DB96c2286E", testnet, false},
		{"eip1191 wrong chain", "0x09b6ca5E4496238A1F176aEa6Bb607DB96c2286E", big.NewInt(30), true},
		{"lowercase", "0xcb46c0ddc60d18efeb0e586c17af6ea36452dae0", testnet, false},
		{"uppercase body", "0xCB46C0DDC60D18EFEB0E586C17AF6EA36452DAE0", nil, false},
		{"bad checksum", "0xcB46c0ddc60D18eFEB0E586C17Af6ea36452Dae0", testnet, true},
		{"short", "0x1234", testnet, true},
		{"no prefix", "cb46c0ddc60d18efeb0e586c17af6ea36452dae0", testnet, true},
		{"garbage", "0xZZ46c0ddc60d18efeb0e586c17af6ea36452dae0", testnet, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.in, tt.chainID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%s) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
