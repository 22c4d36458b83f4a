package receipt

import (
	"errors"
	"fmt"

	"github.com/blacktop/go-receipt/pkg/der"
)

// Verification errors.
var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUntrustedSigner   = errors.New("untrusted signer")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Decoding errors. The DER level errors are re-exported so callers only need
// this package for errors.Is checks.
var (
	ErrUnexpectedTag     = der.ErrUnexpectedTag
	ErrTruncatedInput    = der.ErrTruncatedInput
	ErrIntegerOverflow   = der.ErrIntegerOverflow
	ErrMalformedEncoding = der.ErrMalformedEncoding
	ErrSchemaViolation   = errors.New("schema violation")
)

// Device validation errors.
var (
	ErrMissingAttribute = errors.New("missing attribute")
	ErrHashMismatch     = errors.New("device hash mismatch")
)

// Stage identifies which half of Parse rejected a receipt.
type Stage uint8

const (
	// StageVerify means the envelope is not a genuine, correctly signed receipt.
	StageVerify Stage = iota + 1
	// StageDecode means the signed content is not a valid receipt payload.
	StageDecode
)

func (s Stage) String() string {
	switch s {
	case StageVerify:
		return "verify"
	case StageDecode:
		return "decode"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Error is returned by Parse and the Receipt accessors.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("receipt: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StageOf returns the stage that produced err, or 0 if err did not come from
// this package.
func StageOf(err error) Stage {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Stage
	}
	return 0
}
