package chain

import (
	"errors"
	"fmt"
)

// Admission rejections. Each maps to exactly one stage of the submission
// pipeline and never leaves the ledger partially mutated.
var (
	ErrValidation             = errors.New("chain: malformed transaction")
	ErrInvalidSignature       = errors.New("chain: invalid signature")
	ErrGeometricProofRejected = errors.New("chain: geometric proof rejected")
	ErrInsufficientFunds      = errors.New("chain: insufficient funds")
	ErrPoolFull               = errors.New("chain: pending pool is full")
)

// ConsensusError reports the first block that fails chain validation.
type ConsensusError struct {
	Index  uint64
	Reason string
}

func (e *ConsensusError) Error() string {
	return fmt.Sprintf("chain: consensus violation at block %d: %s", e.Index, e.Reason)
}

// rejectionReason labels an admission error for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrGeometricProofRejected):
		return "geometric_proof"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrPoolFull):
		return "pool_full"
	default:
		return "other"
	}
}
