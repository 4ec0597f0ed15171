package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eigerco/blocksim/internal/attestation"
	"github.com/eigerco/blocksim/internal/block"
	"github.com/eigerco/blocksim/internal/crypto"
	"github.com/eigerco/blocksim/internal/ledger"
	"github.com/eigerco/blocksim/internal/validation"
	"github.com/eigerco/blocksim/pkg/log"
)

// Submitter runs the five admission stages for device log submissions.
type Submitter struct {
	svc      *validation.Service
	cfg      SubmissionConfig
	observer Observer
	newNonce func() string
}

// NewSubmitter returns a submitter backed by svc. A nil observer discards
// outcomes.
func NewSubmitter(svc *validation.Service, cfg SubmissionConfig, observer Observer) *Submitter {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Submitter{
		svc:      svc,
		cfg:      cfg,
		observer: observer,
		newNonce: uuid.NewString,
	}
}

// Submit never panics. Every failure is reported through the returned
// outcome.
func (p *Submitter) Submit(req SubmitRequest) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(fmt.Errorf("%w: %v", ErrPanic, r))
		}
		p.report(req, out)
	}()

	if err := req.Validate(); err != nil {
		return failed(err)
	}
	return p.run(req)
}

func (p *Submitter) run(req SubmitRequest) Outcome {
	// 1. stake
	if !p.svc.HasSufficientStake(req.WalletID, req.StakeAmount) {
		return rejected(ReasonInsufficientStake)
	}

	// 2. device ownership
	reason, err := p.checkDevice(req.WalletID, req.DeviceID)
	if err != nil {
		return failed(err)
	}
	if reason != "" {
		return rejected(reason)
	}

	// 3. attestation
	att := attestation.Attestation{
		DeviceID:        req.DeviceID,
		FirmwareVersion: req.FirmwareVersion,
		IntegrityClaim:  attestation.ExpectedMeasurement(req.FirmwareVersion),
		Nonce:           p.newNonce(),
	}
	if !p.svc.VerifyAttestation(att) {
		return rejected(ReasonInvalidAttestation)
	}

	// 4. log submission
	payload := block.LogPayload{
		DeviceID:         req.DeviceID,
		Entries:          req.SimLog.Entries,
		ContentHash:      req.SimLog.LogHash,
		ContentSignature: req.SimLog.LogSignature,
		Attestation:      att,
		SubmittedAt:      p.svc.Now().UTC(),
	}
	if req.SimLog.SubmittedAt != nil {
		payload.SubmittedAt = req.SimLog.SubmittedAt.UTC()
	}
	if err := p.svc.SubmitLog(payload); err != nil {
		switch {
		case errors.Is(err, ledger.ErrEmptyLog):
			return rejected(ReasonEmptyLog)
		case errors.Is(err, validation.ErrStaleLog):
			return rejected(ReasonStaleLog)
		case errors.Is(err, validation.ErrFutureLog):
			return rejected(ReasonFutureLog)
		case errors.Is(err, block.ErrInvalidPayload):
			return rejected(ReasonInvalidLog)
		}
		return failed(fmt.Errorf("submit log: %w", err))
	}

	// 5. anomaly gate; the log stays in the ledger even when flagged
	score := p.svc.ScoreAnomalies(payload)
	if score > p.cfg.FlagThreshold {
		p.svc.Slash(req.WalletID, p.cfg.SlashPercentage, fmt.Sprintf("Anomaly %.2f", score))
		return flagged(score)
	}

	b, mined, err := p.svc.MinePendingBlock()
	if err != nil {
		return failed(fmt.Errorf("mine block: %w", err))
	}
	p.svc.Reward(req.WalletID, p.cfg.RewardAmount)

	var hash *crypto.Hash
	if mined {
		hash = &b.Hash
	}
	return succeeded(score, p.cfg.RewardAmount, hash)
}

// checkDevice returns a non-empty reason when the device may not submit for
// wallet. An unregistered device is bound to wallet on the way.
func (p *Submitter) checkDevice(wallet, device string) (Reason, error) {
	if owner, ok := p.svc.DeviceOwner(device); ok {
		if owner != wallet {
			return ReasonDeviceWalletMismatch, nil
		}
		return "", nil
	}

	err := p.svc.RegisterDevice(wallet, device)
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, validation.ErrDeviceLimitExceeded):
		return ReasonDeviceLimitExceeded, nil
	case errors.Is(err, validation.ErrDeviceWalletMismatch):
		// bound by a concurrent submission since the lookup
		return ReasonDeviceWalletMismatch, nil
	}
	return "", fmt.Errorf("register device: %w", err)
}

func (p *Submitter) report(req SubmitRequest, out Outcome) {
	p.observer.ObserveSubmission(out)

	var ev *zerolog.Event
	switch out.Status {
	case StatusSuccess:
		ev = log.Pipeline.Debug()
	case StatusError:
		ev = log.Pipeline.Error().Str("error", out.Error)
	default:
		ev = log.Pipeline.Info()
	}
	ev = ev.Str("device_id", req.DeviceID).
		Str("wallet_id", req.WalletID).
		Str("status", string(out.Status))
	if out.Reason != "" {
		ev = ev.Str("reason", string(out.Reason))
	}
	if out.AnomalyScore != nil {
		ev = ev.Float64("anomaly_score", *out.AnomalyScore)
	}
	ev.Msg("log submission processed")
}
