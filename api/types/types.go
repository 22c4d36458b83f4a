package types

import "github.com/blacktop/go-receipt/pkg/receipt"

var (
	BuildVersion string
	BuildTime    string
)

// Version is the version struct
type Version struct {
	APIVersion     string `json:"api_version,omitempty"`
	OSType         string `json:"os_type,omitempty"`
	BuilderVersion string `json:"builder_version,omitempty"`
	BuildTime      string `json:"build_time,omitempty"`
	GoVersion      string `json:"go_version,omitempty"`
}

// GenericError is returned for requests that never reach receipt validation.
type GenericError struct {
	Error string `json:"error"`
}

// Receipt status codes, following the App Store verifyReceipt conventions.
const (
	StatusValid = 0
	// StatusMalformed means the envelope or payload could not be read.
	StatusMalformed = 21002
	// StatusUnauthenticated means the receipt was not signed by a trusted signer
	// or was altered after signing.
	StatusUnauthenticated = 21003
)

// ReceiptRequest is the JSON form of POST /receipt.
type ReceiptRequest struct {
	ReceiptData string `json:"receipt-data" binding:"required"`
}

// ReceiptResponse is returned by POST /receipt.
type ReceiptResponse struct {
	Status  int           `json:"status"`
	Stage   string        `json:"stage,omitempty"`
	Error   string        `json:"error,omitempty"`
	Receipt *receipt.Info `json:"receipt,omitempty"`
}
