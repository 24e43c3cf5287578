// Package types defines the TEE-side vocabulary shared by key derivation,
// operator signing and attestation verification.
//
// Architecture:
//
//	Each pool operator runs inside an enclave. The enclave derives the
//	operator's signing and encryption keys from a master seed and produces a
//	quote binding both keys to the enclave measurement. The registry admits the
//	operator only when that quote verifies.
package types

import (
	"errors"
	"time"
)

// =============================================================================
// Core Errors
// =============================================================================

var (
	ErrKeyNotFound       = errors.New("key not found")
	ErrInvalidKeyHandle  = errors.New("invalid key handle")
	ErrMasterSeedMissing = errors.New("master seed is required")
	ErrAttestationFailed = errors.New("attestation failed")
	ErrUnknownEnclave    = errors.New("enclave measurement not allowed")
)

// =============================================================================
// Enclave Mode
// =============================================================================

// EnclaveMode specifies the TEE operation mode.
type EnclaveMode string

const (
	EnclaveModeSimulation EnclaveMode = "simulation"
	EnclaveModeHardware   EnclaveMode = "hardware"
)

// ParseEnclaveMode maps a configuration string to a mode. Anything other than
// "hardware" selects simulation.
func ParseEnclaveMode(s string) EnclaveMode {
	if EnclaveMode(s) == EnclaveModeHardware {
		return EnclaveModeHardware
	}
	return EnclaveModeSimulation
}

// =============================================================================
// Keys
// =============================================================================

// KeyHandle is an opaque reference to a key held inside the enclave.
type KeyHandle string

// Identity is the public half of an operator's enclave keys, as presented to
// the operator registry.
type Identity struct {
	// Handle references the signing key inside the enclave.
	Handle KeyHandle `json:"handle"`

	// Address is the operator's Neo N3 account address (registry key).
	Address string `json:"address"`

	// SignatureAddress is the hex compressed secp256r1 public key that
	// verifies the operator's protocol signatures.
	SignatureAddress string `json:"signature_address"`

	// EncryptionKey is opaque key material for confidential channels.
	EncryptionKey []byte `json:"encryption_key"`
}

// =============================================================================
// Attestation
// =============================================================================

// Quote is a simulated enclave quote over an operator identity.
type Quote struct {
	RawQuote  []byte    `json:"raw_quote"`
	MREnclave string    `json:"mr_enclave"` // hash of enclave code
	Timestamp time.Time `json:"timestamp"`
}

// QuoteVerification is the outcome of checking an attestation signature.
type QuoteVerification struct {
	Valid      bool      `json:"valid"`
	MREnclave  string    `json:"mr_enclave,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

// =============================================================================
// TEE Error Type
// =============================================================================

// TEEError represents a TEE-specific error.
type TEEError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *TEEError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *TEEError) Unwrap() error {
	return e.Cause
}

// NewTEEError creates a new TEE error.
func NewTEEError(code, message string, cause error) *TEEError {
	return &TEEError{Code: code, Message: message, Cause: cause}
}
