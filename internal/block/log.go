package block

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/eigerco/blocksim/internal/attestation"
)

// Entry is a single telemetry sample.
type Entry struct {
	Timestamp float64 `json:"timestamp"`
	Altitude  float64 `json:"altitude"`
	Battery   float64 `json:"battery"`
	GPSLat    float64 `json:"gps_lat"`
	GPSLon    float64 `json:"gps_lon"`
	AccelX    float64 `json:"accel_x"`
	AccelY    float64 `json:"accel_y"`
	AccelZ    float64 `json:"accel_z"`
}

// LogPayload is a device's log submission as held in the pending buffer and
// in mined blocks.
type LogPayload struct {
	DeviceID         string                  `json:"device_id"`
	Entries          []Entry                 `json:"log"`
	ContentHash      string                  `json:"log_hash"`
	ContentSignature string                  `json:"log_signature"`
	Attestation      attestation.Attestation `json:"attestation"`
	SubmittedAt      time.Time               `json:"submitted_at"`
}

var ErrInvalidPayload = errors.New("log payload cannot be recorded")

// Validate reports whether the payload can be encoded into a block: every
// sample value must be finite and the submission time must fall within years
// 0 to 9999 in UTC.
func (p LogPayload) Validate() error {
	if y := p.SubmittedAt.UTC().Year(); y < 0 || y > 9999 {
		return fmt.Errorf("%w: submitted_at year %d out of range", ErrInvalidPayload, y)
	}
	for i, e := range p.Entries {
		for _, v := range [...]float64{e.Timestamp, e.Altitude, e.Battery, e.GPSLat, e.GPSLon, e.AccelX, e.AccelY, e.AccelZ} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: entry %d has non-finite value", ErrInvalidPayload, i)
			}
		}
	}
	return nil
}
