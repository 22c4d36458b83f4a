// Package certs loads trust anchors and describes the certificates found in
// receipt envelopes.
package certs

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blacktop/go-receipt/internal/colors"
	"github.com/dustin/go-humanize"
)

var (
	OIDAppleCertificatePolicy asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 5, 1}
	// Leaf certificates
	OIDIosAppStoreApplicationLeaf asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 1, 3}
	OIDMacAppStoreApplicationLeaf asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 1, 9}
	OIDMacAppStoreReceiptLeaf     asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 1, 11}
	OIDTestFlightLeaf             asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 1, 25, 1}
	// Intermediate CA
	OIDWorldwideDeveloperRelationsIntermediateCA asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 2, 1}
)

var oidNames = []struct {
	oid  asn1.ObjectIdentifier
	name string
}{
	{OIDAppleCertificatePolicy, "Apple Certificate Policy"},
	{OIDIosAppStoreApplicationLeaf, "iOS AppStore Application (Leaf)"},
	{OIDMacAppStoreApplicationLeaf, "Mac AppStore Application (Leaf)"},
	{OIDMacAppStoreReceiptLeaf, "Mac AppStore Receipt (Leaf)"},
	{OIDTestFlightLeaf, "TestFlight (Leaf)"},
	{OIDWorldwideDeveloperRelationsIntermediateCA, "Worldwide Developer Relations Intermediate CA"},
}

// LookupOID returns a friendly name for the Apple OIDs seen in receipt
// signing chains, or the dotted form for anything else.
func LookupOID(oid asn1.ObjectIdentifier) string {
	for _, n := range oidNames {
		if oid.Equal(n.oid) {
			return n.name
		}
	}
	return oid.String()
}

// KeyUsage mirrors x509.KeyUsage with a readable String method.
type KeyUsage x509.KeyUsage

var keyUsageNames = []string{
	"DigitalSignature",
	"ContentCommitment",
	"KeyEncipherment",
	"DataEncipherment",
	"KeyAgreement",
	"KeyCertSign",
	"CRLSign",
	"EncipherOnly",
	"DecipherOnly",
}

func (ku KeyUsage) String() string {
	var out []string
	for i, name := range keyUsageNames {
		if ku&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	return strings.Join(out, ", ")
}

// LoadCertificates reads PEM or DER encoded certificates from paths. A PEM
// file may hold several certificates.
func LoadCertificates(paths ...string) ([]*x509.Certificate, error) {
	var out []*x509.Certificate
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate %s: %w", path, err)
		}
		certs, err := ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %s: %w", path, err)
		}
		out = append(out, certs...)
	}
	return out, nil
}

// ParseCertificates parses PEM blocks of type CERTIFICATE, or raw DER when
// data is not PEM.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	if !bytes.Contains(data, []byte("-----BEGIN")) {
		return x509.ParseCertificates(data)
	}
	var out []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, cert)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no CERTIFICATE blocks found")
	}
	return out, nil
}

// Fingerprint returns the SHA-256 fingerprint of cert.
func Fingerprint(cert *x509.Certificate) []byte {
	sum := sha256.Sum256(cert.Raw)
	return sum[:]
}

// Describe renders cert for the terminal.
func Describe(cert *x509.Certificate, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", colors.Label().Sprint("Subject:"), cert.Subject.String())
	fmt.Fprintf(&sb, "%s  %s\n", colors.Label().Sprint("Issuer:"), cert.Issuer.String())
	fmt.Fprintf(&sb, "%s  %s\n", colors.Label().Sprint("Serial:"), cert.SerialNumber.Text(16))

	validity := fmt.Sprintf("%s to %s", cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
	switch {
	case now.After(cert.NotAfter):
		validity += " " + colors.Bad().Sprintf("(expired %s)", humanize.RelTime(cert.NotAfter, now, "ago", "from now"))
	case now.Before(cert.NotBefore):
		validity += " " + colors.Warn().Sprint("(not yet valid)")
	default:
		validity += " " + colors.Good().Sprintf("(expires %s)", humanize.RelTime(cert.NotAfter, now, "ago", "from now"))
	}
	fmt.Fprintf(&sb, "%s   %s\n", colors.Label().Sprint("Valid:"), validity)

	if cert.IsCA {
		fmt.Fprintf(&sb, "%s      true\n", colors.Label().Sprint("CA:"))
	}
	if ku := KeyUsage(cert.KeyUsage).String(); ku != "" {
		fmt.Fprintf(&sb, "%s %s\n", colors.Label().Sprint("Usage:"), ku)
	}
	for _, ext := range cert.Extensions {
		if name := LookupOID(ext.Id); name != ext.Id.String() {
			fmt.Fprintf(&sb, "%s    %s\n", colors.Label().Sprint("Ext:"), name)
		}
	}
	for _, pol := range cert.PolicyIdentifiers {
		fmt.Fprintf(&sb, "%s %s\n", colors.Label().Sprint("Policy:"), LookupOID(pol))
	}
	fmt.Fprintf(&sb, "%s\n%s\n", colors.Label().Sprint("SHA256:"), ReprData(Fingerprint(cert), 1, 16))
	return sb.String()
}

// ReprData formats dat as colon separated hex, width bytes per line.
func ReprData(dat []byte, tabs, width int) string {
	var sb strings.Builder
	for i := 0; i < len(dat); i += width {
		end := min(i+width, len(dat))
		parts := make([]string, 0, end-i)
		for _, b := range dat[i:end] {
			parts = append(parts, fmt.Sprintf("%02x", b))
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.Repeat("\t", tabs) + strings.Join(parts, ":"))
	}
	return sb.String()
}
