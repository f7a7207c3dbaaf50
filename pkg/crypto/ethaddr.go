// file: pkg/crypto/ethaddr.go
package crypto

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// EIP55 computes the checksummed hex address string from 20-byte raw address.
func EIP55(addr20 []byte) string {
	return checksum(addr20, "")
}

// EIP1191 computes the chain-aware checksum used by RSK networks:
// the hashed input is "<chainID>0x<lowercase hex>" instead of the bare hex.
func EIP1191(addr20 []byte, chainID *big.Int) string {
	if chainID == nil {
		return EIP55(addr20)
	}
	return checksum(addr20, chainID.String()+"0x")
}

func checksum(addr20 []byte, prefix string) string {
	hexaddr := hex.EncodeToString(addr20) // lower
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prefix + hexaddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexaddr))
	copy(out, "0x")
	for i, c := range []byte(hexaddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		// each hex char maps to one nibble of the hash; uppercase when >= 8
		hb := hash[i>>1]
		var nibble byte
		if i%2 == 0 {
			nibble = hb >> 4
		} else {
			nibble = hb & 0x0f
		}
		if nibble >= 8 {
			out[2+i] = c - 'a' + 'A'
		} else {
			out[2+i] = c
		}
	}
	return string(out)
}

// ParseAddress validates a 0x-prefixed hex address. All-lower and all-upper
// forms are accepted as-is; mixed case must match either the EIP-55 checksum
// or the EIP-1191 checksum for chainID.
func ParseAddress(s string, chainID *big.Int) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("malformed address %q", s)
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("address %q must be 0x-prefixed", s)
	}
	addr := common.HexToAddress(s)
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return addr, nil
	}
	if s == EIP55(addr.Bytes()) {
		return addr, nil
	}
	if chainID != nil && s == EIP1191(addr.Bytes(), chainID) {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("address %q has an invalid checksum", s)
}
