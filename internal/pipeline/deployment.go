package pipeline

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/eigerco/blocksim/internal/attestation"
	"github.com/eigerco/blocksim/internal/crypto"
	"github.com/eigerco/blocksim/internal/firmware"
	"github.com/eigerco/blocksim/pkg/log"
)

const DefaultTargetDevice = "drone_001"

var ErrEmptyTargetDevice = errors.New("target device id is empty")

// Registrar records firmware versions. validation.Service implements it.
type Registrar interface {
	RegisterFirmware(version, measurement, binaryDigest string) (firmware.Record, error)
}

// Deployer authorizes firmware deployments and registers the firmware for
// each target device.
type Deployer struct {
	registrar   Registrar
	deployerKey []byte
	observer    Observer
}

// NewDeployer returns a deployer accepting only deployerKey. An empty key
// authorizes nobody.
func NewDeployer(registrar Registrar, deployerKey string, observer Observer) *Deployer {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Deployer{
		registrar:   registrar,
		deployerKey: []byte(deployerKey),
		observer:    observer,
	}
}

func (d *Deployer) authorized(key string) bool {
	if len(d.deployerKey) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), d.deployerKey) == 1
}

// Deploy registers the firmware once per target device. A failure for one
// device does not affect the others.
func (d *Deployer) Deploy(req DeploymentRequest) DeploymentResult {
	targets := req.TargetDevices
	if len(targets) == 0 {
		targets = []string{DefaultTargetDevice}
	}

	var result DeploymentResult
	if !d.authorized(req.DeployerKey) {
		result = DeploymentResult{
			Error:       ReasonUnauthorizedDeployer,
			Deployments: make(map[string]DeviceDeployment, len(targets)),
		}
		for _, device := range targets {
			result.Deployments[device] = DeviceDeployment{
				Status: DeploymentRejected,
				Error:  string(ReasonUnauthorizedDeployer),
			}
		}
		log.Pipeline.Warn().
			Str("firmware_version", req.FirmwareVersion).
			Int("targets", len(targets)).
			Msg("unauthorized firmware deployment")
		d.observer.ObserveDeployment(result)
		return result
	}

	fingerprint := crypto.Fingerprint([]byte(req.FirmwareContent))
	result = DeploymentResult{
		Deployments: make(map[string]DeviceDeployment, len(targets)),
		Fingerprint: fingerprint,
	}
	for _, device := range targets {
		if err := d.deployTo(device, req.FirmwareVersion, fingerprint); err != nil {
			log.Pipeline.Error().Err(err).
				Str("device_id", device).
				Str("firmware_version", req.FirmwareVersion).
				Msg("firmware deployment failed")
			result.Deployments[device] = DeviceDeployment{Status: DeploymentFailed, Error: err.Error()}
			continue
		}
		result.Deployments[device] = DeviceDeployment{
			Status:      DeploymentDeployed,
			Fingerprint: fingerprint,
			Version:     req.FirmwareVersion,
		}
	}
	for _, dep := range result.Deployments {
		if dep.Status == DeploymentDeployed {
			result.DeployedCount++
		}
	}

	log.Pipeline.Info().
		Str("firmware_version", req.FirmwareVersion).
		Str("firmware_hash", fingerprint).
		Int("deployed", result.DeployedCount).
		Int("targets", len(targets)).
		Msg("firmware deployment processed")
	d.observer.ObserveDeployment(result)
	return result
}

func (d *Deployer) deployTo(device, version, fingerprint string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if device == "" {
		return ErrEmptyTargetDevice
	}
	if _, err := d.registrar.RegisterFirmware(version, attestation.ExpectedMeasurement(version), fingerprint); err != nil {
		return fmt.Errorf("register firmware %q: %w", version, err)
	}
	return nil
}
