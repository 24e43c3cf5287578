// Package attestation binds operator keys to an enclave measurement and
// verifies those bindings when operators register.
package attestation

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/teepool/internal/registry"
	"github.com/R3E-Network/teepool/pkg/logger"
	"github.com/R3E-Network/teepool/tee/types"
)

const quoteDomain = "TEE-Operator-Quote"

// Config holds verifier configuration.
type Config struct {
	// Mode must be simulation; hardware quotes need a DCAP verifier.
	Mode types.EnclaveMode

	// AllowedMeasurements lists hex MRENCLAVE values operators may run.
	AllowedMeasurements []string

	Logger *logger.Logger
}

// Verifier implements registry.AttestationVerifier for simulated quotes.
type Verifier struct {
	mu      sync.RWMutex
	allowed map[string][]byte
	log     *logger.Logger
}

var _ registry.AttestationVerifier = (*Verifier)(nil)

// NewVerifier creates a verifier for the configured measurements.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Mode == types.EnclaveModeHardware {
		return nil, types.NewTEEError("UNSUPPORTED_MODE", "hardware attestation is not available", types.ErrAttestationFailed)
	}
	if len(cfg.AllowedMeasurements) == 0 {
		return nil, fmt.Errorf("at least one allowed measurement is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("attestation")
	}

	v := &Verifier{allowed: make(map[string][]byte), log: cfg.Logger}
	for _, m := range cfg.AllowedMeasurements {
		if err := v.Allow(m); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Allow adds a measurement to the allowlist.
func (v *Verifier) Allow(mrEnclave string) error {
	raw, err := decodeMeasurement(mrEnclave)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.allowed[hex.EncodeToString(raw)] = raw
	v.mu.Unlock()
	return nil
}

// Measurements returns the allowlist in hex, sorted.
func (v *Verifier) Measurements() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]string, 0, len(v.allowed))
	for m := range v.allowed {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// VerifyAttestation reports whether attestationSignature is the quote some
// allowed enclave produces for the operator's keys.
func (v *Verifier) VerifyAttestation(ctx context.Context, teeSignatureAddress string, teeEncryptionKey, attestationSignature []byte) (bool, error) {
	result, err := v.Verify(ctx, teeSignatureAddress, teeEncryptionKey, attestationSignature)
	if err != nil {
		return false, err
	}
	return result.Valid, nil
}

// Verify is VerifyAttestation with the matched measurement reported.
func (v *Verifier) Verify(ctx context.Context, teeSignatureAddress string, teeEncryptionKey, attestationSignature []byte) (*types.QuoteVerification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	result := &types.QuoteVerification{VerifiedAt: time.Now().UTC()}
	for m, raw := range v.allowed {
		expected := rawQuote(raw, teeSignatureAddress, teeEncryptionKey)
		if subtle.ConstantTimeCompare(expected, attestationSignature) == 1 {
			result.Valid = true
			result.MREnclave = m
			break
		}
	}

	v.log.WithFields(logrus.Fields{
		"signature_address": teeSignatureAddress,
		"valid":             result.Valid,
		"mr_enclave":        result.MREnclave,
	}).Debug("attestation checked")

	return result, nil
}

// GenerateQuote produces the simulated quote an enclave measured as
// mrEnclave would emit for the given operator keys.
func GenerateQuote(mrEnclave string, teeSignatureAddress string, teeEncryptionKey []byte) (*types.Quote, error) {
	raw, err := decodeMeasurement(mrEnclave)
	if err != nil {
		return nil, err
	}
	return &types.Quote{
		RawQuote:  rawQuote(raw, teeSignatureAddress, teeEncryptionKey),
		MREnclave: hex.EncodeToString(raw),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Measure derives a simulated MRENCLAVE from enclave code.
func Measure(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}

func rawQuote(mrEnclave []byte, teeSignatureAddress string, teeEncryptionKey []byte) []byte {
	h := sha256.New()
	h.Write([]byte(quoteDomain))
	h.Write(mrEnclave)
	h.Write([]byte(teeSignatureAddress))
	h.Write(teeEncryptionKey)
	return h.Sum(nil)
}

func decodeMeasurement(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("measurement %q must be hex: %w", s, err)
	}
	if len(raw) != sha256.Size {
		return nil, fmt.Errorf("measurement must be %d bytes, got %d", sha256.Size, len(raw))
	}
	return raw, nil
}
