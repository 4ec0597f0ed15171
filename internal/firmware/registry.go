package firmware

import (
	"time"
)

// Record is the registered state of one firmware version.
type Record struct {
	Version string
	// Measurement is the integrity fingerprint attestations are compared against.
	Measurement string
	// BinaryDigest identifies the firmware image (hex SHA-256, or a marker
	// for manual registrations).
	BinaryDigest string
	RegisteredAt time.Time
}

// Registry maps firmware versions to their latest Record. It is not safe for
// concurrent use; the validation service serialises access.
type Registry struct {
	records map[string]Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Register upserts the record for version. Registering a version again
// replaces its record and leaves every other version untouched.
func (r *Registry) Register(version, measurement, binaryDigest string, at time.Time) Record {
	rec := Record{
		Version:      version,
		Measurement:  measurement,
		BinaryDigest: binaryDigest,
		RegisteredAt: at,
	}
	r.records[version] = rec
	return rec
}

func (r *Registry) Lookup(version string) (Record, bool) {
	rec, ok := r.records[version]
	return rec, ok
}

func (r *Registry) Len() int {
	return len(r.records)
}
