package attestation

import (
	"github.com/eigerco/blocksim/internal/firmware"
)

const measurementPrefix = "pcr_"

// Attestation is a device's claim that it runs a given firmware version. It
// travels with the log it was produced for and is not stored on its own.
type Attestation struct {
	DeviceID        string `json:"device_id"`
	FirmwareVersion string `json:"firmware_version"`
	IntegrityClaim  string `json:"pcr"`
	Nonce           string `json:"nonce"`
}

// ExpectedMeasurement is the integrity fingerprint registered for version.
func ExpectedMeasurement(version string) string {
	return measurementPrefix + version
}

// Verifier checks attestations against the firmware registry.
//
// This is a structural equality gate: no signature over the claim or nonce is
// checked, so a passing attestation carries no cryptographic assurance.
type Verifier struct {
	registry *firmware.Registry
}

func NewVerifier(registry *firmware.Registry) *Verifier {
	return &Verifier{registry: registry}
}

// Verify fails closed when firmwareVersion is not registered. Otherwise it
// reports whether the claim equals the registered measurement.
func (v *Verifier) Verify(att Attestation, firmwareVersion string) bool {
	rec, ok := v.registry.Lookup(firmwareVersion)
	if !ok {
		return false
	}
	return att.IntegrityClaim == rec.Measurement
}
