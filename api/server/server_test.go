package server

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/blacktop/go-receipt/api/types"
	"github.com/blacktop/go-receipt/internal/db"
	"github.com/blacktop/go-receipt/internal/model"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/gin-gonic/gin"
	"github.com/smallstep/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type attr struct {
	typ   int64
	value []byte
}

func payload(attrs ...attr) []byte {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SET, func(b *cryptobyte.Builder) {
		for _, a := range attrs {
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1Int64(a.typ)
				b.AddASN1Int64(1)
				b.AddASN1OctetString(a.value)
			})
		}
	})
	return b.BytesOrPanic()
}

func str(tag asn1.Tag, s string) []byte {
	var b cryptobyte.Builder
	b.AddASN1(tag, func(b *cryptobyte.Builder) { b.AddBytes([]byte(s)) })
	return b.BytesOrPanic()
}

func newCert(t *testing.T, name string, parent *x509.Certificate, parentKey *ecdsa.PrivateKey, serial int64) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	if parent == nil {
		tmpl.IsCA = true
		tmpl.BasicConstraintsValid = true
		tmpl.KeyUsage |= x509.KeyUsageCertSign
		parent, parentKey = tmpl, key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, parentKey)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert, key
}

func sign(t *testing.T, content []byte, cert *x509.Certificate, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatal(err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatal(err)
	}
	out, err := sd.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return out
}

type fixture struct {
	handler  http.Handler
	store    db.Database
	trusted  []byte
	impostor []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root, rootKey := newCert(t, "Test Root", nil, nil, 1)
	leaf, leafKey := newCert(t, "Test Signer", root, rootKey, 2)
	otherRoot, otherKey := newCert(t, "Other Root", nil, nil, 3)
	otherLeaf, otherLeafKey := newCert(t, "Other Signer", otherRoot, otherKey, 4)

	content := payload(
		attr{receipt.TypeBundleID, str(asn1.UTF8String, "com.example.app")},
		attr{receipt.TypeInAppPurchase, payload(
			attr{receipt.TypeProductID, str(asn1.UTF8String, "coins")},
			attr{receipt.TypeTransactionID, str(asn1.UTF8String, "1000000001")},
			attr{receipt.TypePurchaseDate, str(asn1.IA5String, "2024-01-15T00:00:00Z")},
		)},
	)

	v, err := receipt.NewVerifier([]*x509.Certificate{root})
	if err != nil {
		t.Fatal(err)
	}
	store, err := db.NewInMemory("")
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(&Config{Host: "localhost", Port: 0, CacheSize: 16, Verifier: v, DB: store})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		handler:  srv.Handler(),
		store:    store,
		trusted:  sign(t, content, leaf, leafKey),
		impostor: sign(t, content, otherLeaf, otherLeafKey),
	}
}

func (f *fixture) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestDaemonRoutes(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodGet, "/v1/_ping", "", nil); w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("GET /_ping = %d %q", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodHead, "/v1/_ping", "", nil); w.Code != http.StatusOK {
		t.Errorf("HEAD /_ping = %d", w.Code)
	}
	w := f.do(t, http.MethodGet, "/v1/version", "", nil)
	var v types.Version
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil || v.APIVersion != "1" || v.GoVersion == "" {
		t.Errorf("GET /version = %d %s", w.Code, w.Body.String())
	}
}

func TestPostReceipt(t *testing.T) {
	f := newFixture(t)
	jsonBody := func(data []byte) []byte {
		b, _ := json.Marshal(types.ReceiptRequest{ReceiptData: base64.StdEncoding.EncodeToString(data)})
		return b
	}

	tests := []struct {
		name        string
		contentType string
		body        []byte
		wantCode    int
		wantStatus  int
		wantStage   string
	}{
		{"raw", "application/octet-stream", f.trusted, http.StatusOK, types.StatusValid, ""},
		{"json", "application/json", jsonBody(f.trusted), http.StatusOK, types.StatusValid, ""},
		{"cached", "application/octet-stream", f.trusted, http.StatusOK, types.StatusValid, ""},
		{"untrusted", "application/octet-stream", f.impostor, http.StatusUnprocessableEntity, types.StatusUnauthenticated, "verify"},
		{"garbage", "application/octet-stream", []byte("garbage"), http.StatusUnprocessableEntity, types.StatusMalformed, "verify"},
		{"bad base64", "application/json", []byte(`{"receipt-data":"%%%"}`), http.StatusBadRequest, types.StatusMalformed, ""},
		{"missing field", "application/json", []byte(`{}`), http.StatusBadRequest, types.StatusMalformed, ""},
		{"empty", "application/octet-stream", nil, http.StatusBadRequest, types.StatusMalformed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/v1/receipt", tt.contentType, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("POST /receipt = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			var resp types.ReceiptResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus || resp.Stage != tt.wantStage {
				t.Errorf("response = %+v, want status %d stage %q", resp, tt.wantStatus, tt.wantStage)
			}
			if tt.wantStatus == types.StatusValid && (resp.Receipt == nil || resp.Receipt.BundleID != "com.example.app") {
				t.Errorf("response receipt = %+v", resp.Receipt)
			}
		})
	}
}

func TestGetPurchase(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodGet, "/v1/purchases/1000000001", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /purchases before validation = %d, want 404", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/v1/receipt", "application/octet-stream", f.trusted); w.Code != http.StatusOK {
		t.Fatalf("POST /receipt = %d: %s", w.Code, w.Body.String())
	}

	w := f.do(t, http.MethodGet, "/v1/purchases/1000000001", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /purchases = %d: %s", w.Code, w.Body.String())
	}
	var p model.Purchase
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.BundleID != "com.example.app" || p.ProductID != "coins" {
		t.Errorf("GET /purchases = %+v", p)
	}
}

func TestPingStoreDown(t *testing.T) {
	v, err := receipt.NewVerifier([]*x509.Certificate{newFixtureRoot(t)})
	if err != nil {
		t.Fatal(err)
	}
	// never connected
	store, err := db.NewSqlite(filepath.Join(t.TempDir(), "receipts.db"), 10)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(&Config{CacheSize: 1, Verifier: v, DB: store})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{handler: srv.Handler(), store: store}
	if w := f.do(t, http.MethodGet, "/v1/_ping", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /_ping = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if w := f.do(t, http.MethodHead, "/v1/_ping", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("HEAD /_ping = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func newFixtureRoot(t *testing.T) *x509.Certificate {
	t.Helper()
	root, _ := newCert(t, "Test Root", nil, nil, 1)
	return root
}

func TestNewServerRequiresDeps(t *testing.T) {
	store, _ := db.NewInMemory("")
	if _, err := NewServer(&Config{CacheSize: 1, DB: store}); err == nil {
		t.Error("NewServer() without a verifier succeeded")
	}
	if _, err := NewServer(&Config{CacheSize: 0, DB: store, Verifier: receipt.InsecureVerifier{}}); err == nil {
		t.Error("NewServer() with a zero cache size succeeded")
	}
}
