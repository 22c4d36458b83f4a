package receipt

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/apex/log"
)

// Receipt attribute types.
const (
	TypeReceiptType                = 0
	TypeAppItemID                  = 1
	TypeBundleID                   = 2
	TypeApplicationVersion         = 3
	TypeOpaqueValue                = 4
	TypeSHA1Hash                   = 5
	TypeReceiptCreationDate        = 8
	TypeCreationDate               = 12
	TypeDownloadID                 = 15
	TypeVersionExternalIdentifier  = 16
	TypeInAppPurchase              = 17
	TypeOriginalPurchaseDate       = 18
	TypeOriginalApplicationVersion = 19
	TypeExpirationDate             = 21
)

// In-app purchase attribute types.
const (
	TypeQuantity              = 1701
	TypeProductID             = 1702
	TypeTransactionID         = 1703
	TypePurchaseDate          = 1704
	TypeOriginalTransactionID = 1705
	TypeInAppOriginalDate     = 1706
	TypeProductType           = 1707
	TypeExpiresDate           = 1708
	TypeWebOrderLineItemID    = 1711
	TypeCancellationDate      = 1712
	TypeIsTrialPeriod         = 1713
	TypeIsInIntroOfferPeriod  = 1719
)

var typeNames = map[int]string{
	TypeReceiptType:                "receipt_type",
	TypeAppItemID:                  "app_item_id",
	TypeBundleID:                   "bundle_id",
	TypeApplicationVersion:         "application_version",
	TypeOpaqueValue:                "opaque_value",
	TypeSHA1Hash:                   "sha1_hash",
	TypeReceiptCreationDate:        "receipt_creation_date",
	TypeCreationDate:               "creation_date",
	TypeDownloadID:                 "download_id",
	TypeVersionExternalIdentifier:  "version_external_identifier",
	TypeInAppPurchase:              "in_app",
	TypeOriginalPurchaseDate:       "original_purchase_date",
	TypeOriginalApplicationVersion: "original_application_version",
	TypeExpirationDate:             "expiration_date",
	TypeQuantity:                   "quantity",
	TypeProductID:                  "product_id",
	TypeTransactionID:              "transaction_id",
	TypePurchaseDate:               "purchase_date",
	TypeOriginalTransactionID:      "original_transaction_id",
	TypeInAppOriginalDate:          "original_purchase_date",
	TypeProductType:                "product_type",
	TypeExpiresDate:                "expires_date",
	TypeWebOrderLineItemID:         "web_order_line_item_id",
	TypeCancellationDate:           "cancellation_date",
	TypeIsTrialPeriod:              "is_trial_period",
	TypeIsInIntroOfferPeriod:       "is_in_intro_offer_period",
}

// TypeName returns the conventional name of an attribute type.
func TypeName(typ int) string {
	if name, ok := typeNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", typ)
}

func carriesRecords(typ int) bool {
	return typ == TypeInAppPurchase
}

// ReceiptType is the environment a receipt was issued for.
type ReceiptType string

const (
	Production        ReceiptType = "Production"
	ProductionSandbox ReceiptType = "ProductionSandbox"
)

// InAppType is the kind of product an in-app purchase is for.
type InAppType int

const (
	InAppUnknown                   InAppType = -1
	InAppNonConsumable             InAppType = 0
	InAppConsumable                InAppType = 1
	InAppNonRenewingSubscription   InAppType = 2
	InAppAutoRenewableSubscription InAppType = 3
)

func (t InAppType) String() string {
	switch t {
	case InAppNonConsumable:
		return "nonConsumable"
	case InAppConsumable:
		return "consumable"
	case InAppNonRenewingSubscription:
		return "nonRenewingSubscription"
	case InAppAutoRenewableSubscription:
		return "autoRenewableSubscription"
	default:
		return "unknown"
	}
}

// MarshalText emits the product type name, or the raw number for values
// without one.
func (t InAppType) MarshalText() ([]byte, error) {
	if t != InAppUnknown && t.String() == "unknown" {
		return []byte(strconv.Itoa(int(t))), nil
	}
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText or a decimal value.
func (t *InAppType) UnmarshalText(text []byte) error {
	for _, known := range []InAppType{
		InAppUnknown,
		InAppNonConsumable,
		InAppConsumable,
		InAppNonRenewingSubscription,
		InAppAutoRenewableSubscription,
	} {
		if string(text) == known.String() {
			*t = known
			return nil
		}
	}
	n, err := strconv.Atoi(string(text))
	if err != nil {
		return fmt.Errorf("invalid in-app product type %q", text)
	}
	*t = InAppType(n)
	return nil
}

// Info is the typed view of a receipt's well known attributes.
type Info struct {
	ReceiptType                ReceiptType     `json:"receipt_type,omitempty" yaml:"receipt_type,omitempty" plist:"receipt_type,omitempty"`
	AppItemID                  int             `json:"app_item_id,omitempty" yaml:"app_item_id,omitempty" plist:"app_item_id,omitempty"`
	BundleID                   string          `json:"bundle_id,omitempty" yaml:"bundle_id,omitempty" plist:"bundle_id,omitempty"`
	ApplicationVersion         string          `json:"application_version,omitempty" yaml:"application_version,omitempty" plist:"application_version,omitempty"`
	OpaqueValue                []byte          `json:"opaque_value,omitempty" yaml:"opaque_value,omitempty" plist:"opaque_value,omitempty"`
	SHA1Hash                   []byte          `json:"sha1_hash,omitempty" yaml:"sha1_hash,omitempty" plist:"sha1_hash,omitempty"`
	ReceiptCreationDate        *time.Time      `json:"receipt_creation_date,omitempty" yaml:"receipt_creation_date,omitempty" plist:"receipt_creation_date,omitempty"`
	CreationDate               *time.Time      `json:"creation_date,omitempty" yaml:"creation_date,omitempty" plist:"creation_date,omitempty"`
	DownloadID                 int             `json:"download_id,omitempty" yaml:"download_id,omitempty" plist:"download_id,omitempty"`
	VersionExternalIdentifier  int             `json:"version_external_identifier,omitempty" yaml:"version_external_identifier,omitempty" plist:"version_external_identifier,omitempty"`
	OriginalPurchaseDate       *time.Time      `json:"original_purchase_date,omitempty" yaml:"original_purchase_date,omitempty" plist:"original_purchase_date,omitempty"`
	OriginalApplicationVersion string          `json:"original_application_version,omitempty" yaml:"original_application_version,omitempty" plist:"original_application_version,omitempty"`
	ExpirationDate             *time.Time      `json:"expiration_date,omitempty" yaml:"expiration_date,omitempty" plist:"expiration_date,omitempty"`
	InAppPurchases             []InAppPurchase `json:"in_app,omitempty" yaml:"in_app,omitempty" plist:"in_app,omitempty"`
	Unknown                    []Attribute     `json:"unknown,omitempty" yaml:"unknown,omitempty" plist:"unknown,omitempty"`
}

// InAppPurchase is one purchase record nested in a receipt.
type InAppPurchase struct {
	Quantity              int         `json:"quantity,omitempty" yaml:"quantity,omitempty" plist:"quantity,omitempty"`
	ProductID             string      `json:"product_id,omitempty" yaml:"product_id,omitempty" plist:"product_id,omitempty"`
	TransactionID         string      `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty" plist:"transaction_id,omitempty"`
	OriginalTransactionID string      `json:"original_transaction_id,omitempty" yaml:"original_transaction_id,omitempty" plist:"original_transaction_id,omitempty"`
	PurchaseDate          *time.Time  `json:"purchase_date,omitempty" yaml:"purchase_date,omitempty" plist:"purchase_date,omitempty"`
	OriginalPurchaseDate  *time.Time  `json:"original_purchase_date,omitempty" yaml:"original_purchase_date,omitempty" plist:"original_purchase_date,omitempty"`
	ProductType           InAppType   `json:"product_type" yaml:"product_type" plist:"product_type"`
	ExpiresDate           *time.Time  `json:"expires_date,omitempty" yaml:"expires_date,omitempty" plist:"expires_date,omitempty"`
	WebOrderLineItemID    int         `json:"web_order_line_item_id,omitempty" yaml:"web_order_line_item_id,omitempty" plist:"web_order_line_item_id,omitempty"`
	CancellationDate      *time.Time  `json:"cancellation_date,omitempty" yaml:"cancellation_date,omitempty" plist:"cancellation_date,omitempty"`
	IsTrialPeriod         bool        `json:"is_trial_period" yaml:"is_trial_period" plist:"is_trial_period"`
	IsInIntroOfferPeriod  bool        `json:"is_in_intro_offer_period" yaml:"is_in_intro_offer_period" plist:"is_in_intro_offer_period"`
	Unknown               []Attribute `json:"unknown,omitempty" yaml:"unknown,omitempty" plist:"unknown,omitempty"`
}

// IsExpired reports whether the subscription has lapsed at now. Purchases
// without an expiry date are considered expired.
func (p InAppPurchase) IsExpired(now time.Time) bool {
	if p.ExpiresDate == nil {
		return true
	}
	return !p.ExpiresDate.After(now)
}

// IsCancelled reports whether the purchase was refunded or revoked by now.
func (p InAppPurchase) IsCancelled(now time.Time) bool {
	if p.CancellationDate == nil {
		return false
	}
	return !p.CancellationDate.After(now)
}

// Info decodes the well known attributes. Unknown types are kept verbatim and
// a known type with an unexpected encoding fails the whole call.
func (r *Receipt) Info() (*Info, error) {
	info := &Info{}
	for _, a := range r.payload {
		if err := info.set(a); err != nil {
			return nil, &Error{Stage: StageDecode, Err: fmt.Errorf("%s (type %d): %w", TypeName(a.Type), a.Type, err)}
		}
	}
	sort.SliceStable(info.InAppPurchases, func(i, j int) bool {
		return timeOrZero(info.InAppPurchases[i].PurchaseDate).Before(timeOrZero(info.InAppPurchases[j].PurchaseDate))
	})
	return info, nil
}

// Purchase returns the in-app purchase with the given transaction id.
func (i *Info) Purchase(transactionID string) (*InAppPurchase, bool) {
	for idx := range i.InAppPurchases {
		if i.InAppPurchases[idx].TransactionID == transactionID {
			return &i.InAppPurchases[idx], true
		}
	}
	return nil, false
}

func (i *Info) set(a Attribute) (err error) {
	switch a.Type {
	case TypeReceiptType:
		var s string
		s, err = a.AsString()
		i.ReceiptType = ReceiptType(s)
	case TypeAppItemID:
		i.AppItemID, err = a.AsInt()
	case TypeBundleID:
		i.BundleID, err = a.AsString()
	case TypeApplicationVersion:
		i.ApplicationVersion, err = a.AsString()
	case TypeOpaqueValue:
		i.OpaqueValue = a.Value
	case TypeSHA1Hash:
		i.SHA1Hash = a.Value
	case TypeReceiptCreationDate:
		i.ReceiptCreationDate, err = optionalTime(a)
	case TypeCreationDate:
		i.CreationDate, err = optionalTime(a)
	case TypeDownloadID:
		i.DownloadID, err = a.AsInt()
	case TypeVersionExternalIdentifier:
		i.VersionExternalIdentifier, err = a.AsInt()
	case TypeInAppPurchase:
		var p Payload
		if p, err = a.AsPayload(); err != nil {
			return err
		}
		var iap InAppPurchase
		if err = iap.decode(p); err != nil {
			return err
		}
		i.InAppPurchases = append(i.InAppPurchases, iap)
	case TypeOriginalPurchaseDate:
		i.OriginalPurchaseDate, err = optionalTime(a)
	case TypeOriginalApplicationVersion:
		i.OriginalApplicationVersion, err = a.AsString()
	case TypeExpirationDate:
		i.ExpirationDate, err = optionalTime(a)
	default:
		i.Unknown = append(i.Unknown, a)
	}
	return err
}

func (p *InAppPurchase) decode(attrs Payload) error {
	p.ProductType = InAppUnknown
	for _, a := range attrs {
		var err error
		switch a.Type {
		case TypeQuantity:
			p.Quantity, err = a.AsInt()
		case TypeProductID:
			p.ProductID, err = a.AsString()
		case TypeTransactionID:
			p.TransactionID, err = a.AsString()
		case TypeOriginalTransactionID:
			p.OriginalTransactionID, err = a.AsString()
		case TypePurchaseDate:
			p.PurchaseDate, err = optionalTime(a)
		case TypeInAppOriginalDate:
			p.OriginalPurchaseDate, err = optionalTime(a)
		case TypeProductType:
			var n int
			n, err = a.AsInt()
			p.ProductType = InAppType(n)
		case TypeExpiresDate:
			p.ExpiresDate, err = optionalTime(a)
		case TypeWebOrderLineItemID:
			p.WebOrderLineItemID, err = a.AsInt()
		case TypeCancellationDate:
			p.CancellationDate, err = optionalTime(a)
		case TypeIsTrialPeriod:
			p.IsTrialPeriod, err = a.AsBool()
		case TypeIsInIntroOfferPeriod:
			p.IsInIntroOfferPeriod, err = a.AsBool()
		default:
			p.Unknown = append(p.Unknown, a)
		}
		if err != nil {
			return fmt.Errorf("%s (type %d): %w", TypeName(a.Type), a.Type, err)
		}
	}
	return nil
}

// optionalTime leaves the field unset for an empty or unparsable date. The
// value must still be a string.
func optionalTime(a Attribute) (*time.Time, error) {
	s, err := a.AsString()
	if err != nil || s == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		log.WithFields(log.Fields{
			"type":  TypeName(a.Type),
			"value": s,
		}).Debug("ignoring unparsable receipt date")
		return nil, nil
	}
	return &t, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
