package crypto

const (
	HashSize        = 32
	FingerprintSize = 64 // hex-encoded SHA-256
)
