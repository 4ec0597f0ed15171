package validation

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/eigerco/blocksim/internal/anomaly"
	"github.com/eigerco/blocksim/internal/attestation"
	"github.com/eigerco/blocksim/internal/block"
	"github.com/eigerco/blocksim/internal/clock"
	"github.com/eigerco/blocksim/internal/crypto"
	"github.com/eigerco/blocksim/internal/economics"
	"github.com/eigerco/blocksim/internal/firmware"
	"github.com/eigerco/blocksim/internal/ledger"
	"github.com/eigerco/blocksim/internal/store"
)

var (
	ErrStaleLog             = errors.New("log submitted too long ago")
	ErrFutureLog            = errors.New("log submitted in the future")
	ErrDeviceLimitExceeded  = errors.New("wallet already owns the maximum number of devices")
	ErrDeviceWalletMismatch = errors.New("device is owned by another wallet")
	ErrEmptyFirmwareVersion = errors.New("firmware version is empty")
	ErrEmptyDeviceID        = errors.New("device id is empty")
)

const (
	DefaultMaxDevicesPerWallet = 5
	DefaultStalenessBound      = time.Hour
	DefaultClockSkew           = 5 * time.Minute
)

// Limits bounds device ownership and log age.
type Limits struct {
	MaxDevicesPerWallet int
	StalenessBound      time.Duration
	// ClockSkew is how far ahead of the service clock submitted_at may be.
	ClockSkew time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxDevicesPerWallet: DefaultMaxDevicesPerWallet,
		StalenessBound:      DefaultStalenessBound,
		ClockSkew:           DefaultClockSkew,
	}
}

// Service owns the firmware registry, device registry, ledger and stake
// balances. Every exported method holds one lock for its whole body, so calls
// are linearizable with respect to each other.
type Service struct {
	mu sync.Mutex

	clock  clock.Clock
	limits Limits

	firmware  *firmware.Registry
	verifier  *attestation.Verifier
	ledger    *ledger.Ledger
	scorer    anomaly.Scorer
	economics *economics.Ledger

	devices       map[string]string              // device -> wallet
	walletDevices map[string]map[string]struct{} // wallet -> devices
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithScorer(sc anomaly.Scorer) Option {
	return func(s *Service) { s.scorer = sc }
}

func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

// NewService builds a service whose mined blocks are written to chain.
func NewService(chain *store.Chain, opts ...Option) *Service {
	s := &Service{
		clock:         clock.System{},
		limits:        DefaultLimits(),
		scorer:        anomaly.NewHeuristic(anomaly.DefaultMagnitudeThreshold),
		firmware:      firmware.NewRegistry(),
		economics:     economics.NewLedger(),
		devices:       make(map[string]string),
		walletDevices: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.verifier = attestation.NewVerifier(s.firmware)
	s.ledger = ledger.New(chain, s.clock)
	return s
}

// Now reads the service clock.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// RegisterFirmware upserts the record for version.
func (s *Service) RegisterFirmware(version, measurement, binaryDigest string) (firmware.Record, error) {
	if version == "" {
		return firmware.Record{}, ErrEmptyFirmwareVersion
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmware.Register(version, measurement, binaryDigest, s.clock.Now().UTC()), nil
}

func (s *Service) Firmware(version string) (firmware.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmware.Lookup(version)
}

// VerifyAttestation checks att against the firmware version it names.
func (s *Service) VerifyAttestation(att attestation.Attestation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifier.Verify(att, att.FirmwareVersion)
}

// SubmitLog rejects payloads older than the staleness bound or dated beyond
// the allowed clock skew, then hands the payload to the ledger.
func (s *Service) SubmitLog(payload block.LogPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if now.Sub(payload.SubmittedAt) > s.limits.StalenessBound {
		return ErrStaleLog
	}
	if payload.SubmittedAt.Sub(now) > s.limits.ClockSkew {
		return ErrFutureLog
	}
	return s.ledger.Submit(payload)
}

func (s *Service) ScoreAnomalies(payload block.LogPayload) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scorer.Score(payload)
}

// Stake deposits amount into the wallet.
func (s *Service) Stake(wallet string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economics.Deposit(wallet, amount)
}

func (s *Service) Slash(wallet string, percentage float64, reason string) economics.SlashEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economics.Slash(wallet, percentage, reason, s.clock.Now().UTC())
}

func (s *Service) Reward(wallet string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.economics.Reward(wallet, amount)
}

func (s *Service) Balance(wallet string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economics.Balance(wallet)
}

func (s *Service) HasSufficientStake(wallet string, amount float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economics.Balance(wallet) >= amount
}

func (s *Service) SlashHistory(wallet string) []economics.SlashEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economics.SlashHistory(wallet)
}

// RegisterDevice binds device to wallet. Binding a device the wallet already
// owns succeeds without change. A device is never moved between wallets.
func (s *Service) RegisterDevice(wallet, device string) error {
	if device == "" {
		return ErrEmptyDeviceID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.devices[device]; ok {
		if owner != wallet {
			return ErrDeviceWalletMismatch
		}
		return nil
	}

	owned := s.walletDevices[wallet]
	if len(owned) >= s.limits.MaxDevicesPerWallet {
		return fmt.Errorf("%w (%d)", ErrDeviceLimitExceeded, s.limits.MaxDevicesPerWallet)
	}
	if owned == nil {
		owned = make(map[string]struct{})
		s.walletDevices[wallet] = owned
	}
	owned[device] = struct{}{}
	s.devices[device] = wallet
	return nil
}

func (s *Service) DeviceOwner(device string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.devices[device]
	return wallet, ok
}

// DevicesOf returns the wallet's devices in sorted order.
func (s *Service) DevicesOf(wallet string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.walletDevices[wallet]))
	for d := range s.walletDevices[wallet] {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// MinePendingBlock mines the pending buffer. It returns false when there was
// nothing to mine.
func (s *Service) MinePendingBlock() (block.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Mine()
}

func (s *Service) LatestBlockHash() (crypto.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.LatestBlockHash()
}

// LatestBlock loads the most recently mined block. It returns false when
// nothing has been mined.
func (s *Service) LatestBlock() (block.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := s.ledger.LatestBlockHash()
	if !ok {
		return block.Block{}, false, nil
	}
	b, err := s.ledger.Block(hash)
	if err != nil {
		return block.Block{}, false, fmt.Errorf("load block %s: %w", hash, err)
	}
	return b, true, nil
}

func (s *Service) Height() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Height()
}

func (s *Service) PendingLogs() []block.LogPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Pending()
}

func (s *Service) Block(hash crypto.Hash) (block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Block(hash)
}

func (s *Service) Blocks() ([]block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Blocks()
}
