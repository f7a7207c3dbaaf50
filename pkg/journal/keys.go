package journal

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	tx:{from}:{nonce} → Entry (JSON)
//
// The nonce is zero-padded (20 digits) so a prefix scan returns an account's
// submissions in sequence order.
const prefixTx = "tx:"

// txKey returns the key for one submission
// Format: "tx:{from}:{nonce:020d}"
func txKey(from common.Address, nonce uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTx, from.Hex(), nonce))
}

// txPrefix returns the prefix for all submissions of an account
// Format: "tx:{from}:"
func txPrefix(from common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTx, from.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
