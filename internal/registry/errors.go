package registry

import "errors"

var (
	ErrAlreadyRegistered  = errors.New("operator already registered")
	ErrUnknownOperator    = errors.New("unknown operator")
	ErrAttestationInvalid = errors.New("attestation invalid")
	ErrInvalidOperator    = errors.New("invalid operator")
)
