package cache

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

var keyMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...any) string {
	data, err := keyMode.Marshal(parts)
	if err != nil {
		panic(fmt.Sprintf("cache: key parts not encodable: %v", err))
	}
	return fmt.Sprintf("%s:%s", prefix, Hash(data))
}

// Hash computes the BLAKE3-256 digest of data as 64 hex characters.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
