package store

import "encoding/binary"

// Key prefixes
const (
	prefixBlock byte = iota + 1
	prefixHeight
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixBlock:
		return "block"
	case prefixHeight:
		return "height"
	default:
		return "unknown"
	}
}

// makeKey creates a key from a prefix and hash
func makeKey(prefix byte, hash []byte) []byte {
	key := make([]byte, 1+len(hash))
	key[0] = prefix
	copy(key[1:], hash)
	return key
}

// heightKey encodes height big-endian so keys sort by height.
func heightKey(height uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return makeKey(prefixHeight, buf[:])
}
