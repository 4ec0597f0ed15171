package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/blocksim/internal/crypto"
	"github.com/eigerco/blocksim/internal/firmware"
)

const testKey = "master_key_phase1"

func TestDeployRegistersFirmware(t *testing.T) {
	f := newFixture(t)
	obs := &recordingObserver{}
	d := NewDeployer(f.svc, testKey, obs)

	res := d.Deploy(DeploymentRequest{
		DeployerKey:     testKey,
		FirmwareVersion: "v2.0",
		TargetDevices:   []string{"drone_001", "drone_002"},
		FirmwareContent: "println(\"fly\")",
	})

	want := crypto.Fingerprint([]byte("println(\"fly\")"))
	assert.Empty(t, res.Error)
	assert.Equal(t, want, res.Fingerprint)
	assert.Equal(t, 2, res.DeployedCount)
	for _, device := range []string{"drone_001", "drone_002"} {
		assert.Equal(t, DeviceDeployment{Status: DeploymentDeployed, Fingerprint: want, Version: "v2.0"}, res.Deployments[device])
	}

	rec, ok := f.svc.Firmware("v2.0")
	require.True(t, ok)
	assert.Equal(t, "pcr_v2.0", rec.Measurement)
	assert.Equal(t, want, rec.BinaryDigest)

	require.Len(t, obs.deployments, 1)
	assert.Equal(t, res, obs.deployments[0])
}

func TestDeployIsIdempotent(t *testing.T) {
	f := newFixture(t)
	d := NewDeployer(f.svc, testKey, nil)
	req := DeploymentRequest{DeployerKey: testKey, FirmwareVersion: "v2.0", FirmwareContent: "same"}

	first := d.Deploy(req)
	second := d.Deploy(req)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	// unrelated versions are untouched
	rec, ok := f.svc.Firmware("v1.0")
	require.True(t, ok)
	assert.Equal(t, "digest", rec.BinaryDigest)
}

func TestDeployDefaultTarget(t *testing.T) {
	reg := &registrarMock{}
	reg.On("RegisterFirmware", "v1.0", "pcr_v1.0", mock.Anything).Return(firmware.Record{}, nil)
	d := NewDeployer(reg, testKey, nil)

	req := DeploymentRequest{DeployerKey: testKey, FirmwareVersion: "v1.0"}
	res := d.Deploy(req)

	assert.Equal(t, 1, res.DeployedCount)
	assert.Contains(t, res.Deployments, DefaultTargetDevice)
	assert.Nil(t, req.TargetDevices, "default list is not written back to the request")
	reg.AssertNumberOfCalls(t, "RegisterFirmware", 1)
}

func TestDeployUnauthorized(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
	}{
		{name: "wrong_key", configured: testKey, presented: "guess"},
		{name: "empty_key", configured: testKey, presented: ""},
		{name: "prefix", configured: testKey, presented: testKey[:5]},
		{name: "nothing_configured", configured: "", presented: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := &registrarMock{}
			d := NewDeployer(reg, tc.configured, nil)

			res := d.Deploy(DeploymentRequest{
				DeployerKey:     tc.presented,
				FirmwareVersion: "v1.0",
				TargetDevices:   []string{"a", "b"},
				FirmwareContent: "x",
			})

			assert.Equal(t, ReasonUnauthorizedDeployer, res.Error)
			assert.Zero(t, res.DeployedCount)
			assert.Empty(t, res.Fingerprint)
			require.Len(t, res.Deployments, 2)
			for _, dep := range res.Deployments {
				assert.Equal(t, DeploymentRejected, dep.Status)
				assert.Equal(t, string(ReasonUnauthorizedDeployer), dep.Error)
			}
			reg.AssertNotCalled(t, "RegisterFirmware", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDeployUnauthorizedLeavesRegistryUntouched(t *testing.T) {
	f := newFixture(t)
	d := NewDeployer(f.svc, testKey, nil)

	d.Deploy(DeploymentRequest{DeployerKey: "nope", FirmwareVersion: "v3.0", FirmwareContent: "x"})

	_, ok := f.svc.Firmware("v3.0")
	assert.False(t, ok)
}

func TestDeployIsolatesDeviceFailures(t *testing.T) {
	reg := &registrarMock{}
	reg.On("RegisterFirmware", "v1.0", "pcr_v1.0", mock.Anything).Return(firmware.Record{}, nil).Once()
	reg.On("RegisterFirmware", "v1.0", "pcr_v1.0", mock.Anything).Return(firmware.Record{}, errors.New("disk on fire")).Once()
	reg.On("RegisterFirmware", "v1.0", "pcr_v1.0", mock.Anything).Return(firmware.Record{}, nil).Once()
	d := NewDeployer(reg, testKey, nil)

	res := d.Deploy(DeploymentRequest{
		DeployerKey:     testKey,
		FirmwareVersion: "v1.0",
		TargetDevices:   []string{"d1", "d2", "d3"},
		FirmwareContent: "x",
	})

	assert.Equal(t, 2, res.DeployedCount)
	assert.Equal(t, DeploymentDeployed, res.Deployments["d1"].Status)
	assert.Equal(t, DeploymentFailed, res.Deployments["d2"].Status)
	assert.Contains(t, res.Deployments["d2"].Error, "disk on fire")
	assert.Equal(t, DeploymentDeployed, res.Deployments["d3"].Status)
	reg.AssertExpectations(t)
}

func TestDeployEmptyDeviceFailsAlone(t *testing.T) {
	f := newFixture(t)
	d := NewDeployer(f.svc, testKey, nil)

	res := d.Deploy(DeploymentRequest{
		DeployerKey:     testKey,
		FirmwareVersion: "v1.1",
		TargetDevices:   []string{"drone_001", ""},
		FirmwareContent: "x",
	})

	assert.Equal(t, 1, res.DeployedCount)
	assert.Equal(t, DeploymentFailed, res.Deployments[""].Status)
	assert.Equal(t, ErrEmptyTargetDevice.Error(), res.Deployments[""].Error)
}

func TestDeployEmptyVersionFailsPerDevice(t *testing.T) {
	f := newFixture(t)
	d := NewDeployer(f.svc, testKey, nil)

	res := d.Deploy(DeploymentRequest{DeployerKey: testKey, TargetDevices: []string{"a", "b"}})

	assert.Zero(t, res.DeployedCount)
	assert.Len(t, res.Deployments, 2)
	for _, dep := range res.Deployments {
		assert.Equal(t, DeploymentFailed, dep.Status)
	}
}

func TestDeployRecoversRegistrarPanic(t *testing.T) {
	reg := &registrarMock{}
	reg.On("RegisterFirmware", "v1.0", "pcr_v1.0", mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(firmware.Record{}, nil).Once()
	reg.On("RegisterFirmware", "v1.0", "pcr_v1.0", mock.Anything).Return(firmware.Record{}, nil).Once()
	d := NewDeployer(reg, testKey, nil)

	res := d.Deploy(DeploymentRequest{DeployerKey: testKey, FirmwareVersion: "v1.0", TargetDevices: []string{"a", "b"}})

	assert.Equal(t, DeploymentFailed, res.Deployments["a"].Status)
	assert.Contains(t, res.Deployments["a"].Error, "boom")
	assert.Equal(t, DeploymentDeployed, res.Deployments["b"].Status)
}
