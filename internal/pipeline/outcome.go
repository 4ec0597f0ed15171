package pipeline

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/eigerco/blocksim/internal/block"
	"github.com/eigerco/blocksim/internal/crypto"
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusRejected Status = "rejected"
	StatusFlagged  Status = "flagged"
	StatusError    Status = "error"
)

// Reason is an expected, user-facing rejection cause.
type Reason string

const (
	ReasonInsufficientStake    Reason = "insufficient_stake"
	ReasonDeviceLimitExceeded  Reason = "device_limit_exceeded"
	ReasonDeviceWalletMismatch Reason = "device_wallet_mismatch"
	ReasonInvalidAttestation   Reason = "invalid_attestation"
	ReasonEmptyLog             Reason = "empty_log"
	ReasonStaleLog             Reason = "stale_log"
	ReasonFutureLog            Reason = "future_log"
	ReasonInvalidLog           Reason = "invalid_log"
	ReasonUnauthorizedDeployer Reason = "unauthorized_deployer"
)

var (
	ErrMissingDeviceID        = errors.New("device_id is required")
	ErrMissingWalletID        = errors.New("wallet_id is required")
	ErrMissingFirmwareVersion = errors.New("firmware_version is required")
	ErrInvalidStakeAmount     = errors.New("stake_amount must be a non-negative number")
	ErrPanic                  = errors.New("pipeline panicked")
)

// SimLog is the simulated flight log attached to a submission.
type SimLog struct {
	Entries      []block.Entry `json:"log"`
	LogHash      string        `json:"log_hash"`
	LogSignature string        `json:"log_signature"`
	// SubmittedAt defaults to the time the pipeline receives the request.
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type SubmitRequest struct {
	DeviceID        string  `json:"device_id"`
	WalletID        string  `json:"wallet_id"`
	StakeAmount     float64 `json:"stake_amount"`
	FirmwareVersion string  `json:"firmware_version"`
	SimLog          SimLog  `json:"sim_log"`
}

// Validate checks the request shape before any stage runs.
func (r SubmitRequest) Validate() error {
	switch {
	case r.DeviceID == "":
		return ErrMissingDeviceID
	case r.WalletID == "":
		return ErrMissingWalletID
	case r.FirmwareVersion == "":
		return ErrMissingFirmwareVersion
	case r.StakeAmount < 0 || math.IsNaN(r.StakeAmount) || math.IsInf(r.StakeAmount, 0):
		return fmt.Errorf("%w: %v", ErrInvalidStakeAmount, r.StakeAmount)
	}
	return nil
}

// Outcome is the terminal result of one submission. Optional fields are nil
// when they do not apply to the status.
type Outcome struct {
	Status       Status       `json:"status"`
	Reason       Reason       `json:"reason,omitempty"`
	AnomalyScore *float64     `json:"anomaly_score,omitempty"`
	BlockHash    *crypto.Hash `json:"block_hash,omitempty"`
	Reward       *float64     `json:"reward,omitempty"`
	Error        string       `json:"error,omitempty"`
}

func rejected(reason Reason) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason}
}

func failed(err error) Outcome {
	return Outcome{Status: StatusError, Error: err.Error()}
}

func flagged(score float64) Outcome {
	return Outcome{Status: StatusFlagged, AnomalyScore: &score}
}

func succeeded(score, reward float64, blockHash *crypto.Hash) Outcome {
	return Outcome{
		Status:       StatusSuccess,
		AnomalyScore: &score,
		Reward:       &reward,
		BlockHash:    blockHash,
	}
}

type DeploymentStatus string

const (
	DeploymentDeployed DeploymentStatus = "deployed"
	DeploymentFailed   DeploymentStatus = "failed"
	DeploymentRejected DeploymentStatus = "rejected"
)

type DeploymentRequest struct {
	DeployerKey     string   `json:"deployer_key"`
	FirmwareVersion string   `json:"firmware_version"`
	TargetDevices   []string `json:"target_devices"`
	FirmwareContent string   `json:"firmware_content"`
}

// DeviceDeployment is the per-device result of a deployment.
type DeviceDeployment struct {
	Status      DeploymentStatus `json:"status"`
	Fingerprint string           `json:"firmware_hash,omitempty"`
	Version     string           `json:"version,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type DeploymentResult struct {
	Error         Reason                      `json:"error,omitempty"`
	Deployments   map[string]DeviceDeployment `json:"deployments"`
	Fingerprint   string                      `json:"firmware_hash,omitempty"`
	DeployedCount int                         `json:"deployed_count"`
}

// Observer receives every terminal pipeline result.
type Observer interface {
	ObserveSubmission(Outcome)
	ObserveDeployment(DeploymentResult)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmission(Outcome)          {}
func (nopObserver) ObserveDeployment(DeploymentResult) {}
