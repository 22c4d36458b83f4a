package receipt

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	fullsailor "github.com/fullsailor/pkcs7"
	"github.com/smallstep/pkcs7"
)

// Verifier authenticates a signed-data envelope and returns its content.
type Verifier interface {
	Verify(envelope []byte) ([]byte, error)
}

// PKCS7Verifier checks that a PKCS#7 signed-data envelope was signed by a
// certificate chaining to one of its trusted roots. It holds no mutable state
// and may be shared between goroutines.
type PKCS7Verifier struct {
	roots         *x509.CertPool
	intermediates []*x509.Certificate
	verifyTime    time.Time
}

// VerifierOption configures a PKCS7Verifier.
type VerifierOption func(*PKCS7Verifier)

// WithVerifyTime validates the signer chain as of t instead of now.
func WithVerifyTime(t time.Time) VerifierOption {
	return func(v *PKCS7Verifier) {
		v.verifyTime = t
	}
}

// WithIntermediates adds intermediate certificates that receipts may omit.
func WithIntermediates(certs ...*x509.Certificate) VerifierOption {
	return func(v *PKCS7Verifier) {
		v.intermediates = append(v.intermediates, certs...)
	}
}

// NewVerifier creates a PKCS7Verifier trusting roots.
func NewVerifier(roots []*x509.Certificate, opts ...VerifierOption) (*PKCS7Verifier, error) {
	if len(roots) == 0 {
		return nil, errors.New("receipt: at least one trusted root certificate is required")
	}
	v := &PKCS7Verifier{roots: x509.NewCertPool()}
	for _, root := range roots {
		if root == nil {
			return nil, errors.New("receipt: nil trusted root certificate")
		}
		v.roots.AddCert(root)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify parses envelope, validates the signer chain, checks the signature
// over the content and returns the content bytes.
func (v *PKCS7Verifier) Verify(envelope []byte) ([]byte, error) {
	p7, err := pkcs7.Parse(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(p7.Content) == 0 {
		return nil, fmt.Errorf("%w: no signed content", ErrMalformedEnvelope)
	}
	signer := p7.GetOnlySigner()
	if signer == nil {
		return nil, fmt.Errorf("%w: expected exactly one signer with an embedded certificate, found %d signer(s)", ErrMalformedEnvelope, len(p7.Signers))
	}

	intermediates := x509.NewCertPool()
	for _, cert := range v.intermediates {
		intermediates.AddCert(cert)
	}
	for _, cert := range p7.Certificates {
		intermediates.AddCert(cert)
	}

	log.WithFields(log.Fields{
		"signer":       signer.Subject.CommonName,
		"certificates": len(p7.Certificates),
	}).Debug("verifying receipt signer chain")

	if _, err := signer.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.verifyTime,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUntrustedSigner, err)
	}

	// the chain is already validated above, this only checks digest and signature
	if err := p7.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}

	return p7.Content, nil
}

// InsecureVerifier unwraps the envelope content WITHOUT checking anything.
// It exists for inspecting captured receipts when no trust anchor is at hand
// and must never gate access to purchases.
type InsecureVerifier struct{}

// Verify returns the envelope content.
func (InsecureVerifier) Verify(envelope []byte) ([]byte, error) {
	p7, err := fullsailor.Parse(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(p7.Content) == 0 {
		return nil, fmt.Errorf("%w: no signed content", ErrMalformedEnvelope)
	}
	log.Warn("receipt signature NOT verified")
	return p7.Content, nil
}
