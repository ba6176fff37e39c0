package receipt

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Reference derives the value stored alongside an entitlement: a keyed
// digest of the receipt plus the store transaction id. The raw receipt is
// never persisted and the reference is never used to re-derive trust.
func Reference(key []byte, receiptData, transactionID string) string {
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// only reachable with an oversized key, handled above
		panic(err)
	}
	h.Write([]byte(receiptData))
	return transactionID + ":" + hex.EncodeToString(h.Sum(nil))
}
