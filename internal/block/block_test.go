package block

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/blocksim/internal/attestation"
)

var minedAt = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

func testLogs() []LogPayload {
	return []LogPayload{{
		DeviceID:    "drone_001",
		Entries:     []Entry{{Timestamp: 1, AccelX: 1.5, AccelY: -2}},
		ContentHash: "h",
		Attestation: attestation.Attestation{
			DeviceID:        "drone_001",
			FirmwareVersion: "v1.0",
			IntegrityClaim:  "pcr_v1.0",
			Nonce:           "n1",
		},
		SubmittedAt: minedAt.Add(-time.Minute),
	}}
}

func TestNewBlockHashIsContentDerived(t *testing.T) {
	a, err := New(0, testLogs(), minedAt)
	require.NoError(t, err)
	b, err := New(0, testLogs(), minedAt)
	require.NoError(t, err)

	assert.False(t, a.Hash.IsZero())
	assert.Equal(t, a.Hash, b.Hash)

	tests := []struct {
		name   string
		height uint64
		logs   []LogPayload
		at     time.Time
	}{
		{name: "different_height", height: 1, logs: testLogs(), at: minedAt},
		{name: "different_time", height: 0, logs: testLogs(), at: minedAt.Add(time.Nanosecond)},
		{name: "different_logs", height: 0, logs: append(testLogs(), testLogs()...), at: minedAt},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			other, err := New(tc.height, tc.logs, tc.at)
			require.NoError(t, err)
			assert.NotEqual(t, a.Hash, other.Hash)
		})
	}
}

func TestComputeHashMatchesStoredHash(t *testing.T) {
	b, err := New(3, testLogs(), minedAt)
	require.NoError(t, err)

	h, err := b.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, b.Hash, h)
}

func TestBlockBytesRoundTrip(t *testing.T) {
	b, err := New(7, testLogs(), minedAt)
	require.NoError(t, err)

	data, err := b.Bytes()
	require.NoError(t, err)

	decoded, err := BlockFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, b.Hash, decoded.Hash)
	assert.Equal(t, b.Height, decoded.Height)
	assert.True(t, b.MinedAt.Equal(decoded.MinedAt))
	require.Len(t, decoded.Logs, 1)
	assert.Equal(t, b.Logs[0].Entries, decoded.Logs[0].Entries)

	h, err := decoded.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, b.Hash, h)
}

func TestBlockFromBytesInvalid(t *testing.T) {
	_, err := BlockFromBytes([]byte("{"))
	assert.Error(t, err)
}

func TestLogPayloadWireNames(t *testing.T) {
	data, err := json.Marshal(testLogs()[0])
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, k := range []string{"device_id", "log", "log_hash", "log_signature", "attestation", "submitted_at"} {
		assert.Contains(t, fields, k)
	}
}

func TestLogPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *LogPayload)
		wantErr bool
	}{
		{name: "valid", mutate: func(*LogPayload) {}},
		{name: "year_9999", mutate: func(p *LogPayload) { p.SubmittedAt = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC) }},
		{name: "year_10000_after_utc", mutate: func(p *LogPayload) {
			p.SubmittedAt = time.Date(9999, 12, 31, 23, 59, 59, 0, time.FixedZone("", -3600))
		}, wantErr: true},
		{name: "negative_year", mutate: func(p *LogPayload) { p.SubmittedAt = time.Date(-1, 1, 1, 0, 0, 0, 0, time.UTC) }, wantErr: true},
		{name: "nan_entry", mutate: func(p *LogPayload) { p.Entries[0].Altitude = math.NaN() }, wantErr: true},
		{name: "inf_entry", mutate: func(p *LogPayload) { p.Entries[0].AccelZ = math.Inf(-1) }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := testLogs()[0]
			tc.mutate(&p)

			err := p.Validate()
			if !tc.wantErr {
				require.NoError(t, err)
				_, err = New(0, []LogPayload{p}, minedAt)
				assert.NoError(t, err, "a valid payload must encode into a block")
				return
			}
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}
