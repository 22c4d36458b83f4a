// Package receipts provides the receipt validation and purchase lookup routes
package receipts

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/go-receipt/api"
	"github.com/blacktop/go-receipt/api/types"
	"github.com/blacktop/go-receipt/internal/db"
	"github.com/blacktop/go-receipt/internal/model"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

type result struct {
	code int
	resp types.ReceiptResponse
}

type handler struct {
	verifier receipt.Verifier
	db       db.Database
	cache    *lru.Cache[[sha256.Size]byte, result]
	inflight singleflight.Group
}

func newHandler(v receipt.Verifier, store db.Database, cacheSize int) (*handler, error) {
	if v == nil {
		return nil, errors.New("receipts: a verifier is required")
	}
	if store == nil {
		return nil, errors.New("receipts: a database is required")
	}
	cache, err := lru.New[[sha256.Size]byte, result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("receipts: failed to create cache: %w", err)
	}
	return &handler{verifier: v, db: store, cache: cache}, nil
}

// readReceipt returns the DER envelope from a raw or JSON request body.
func readReceipt(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req types.ReceiptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(req.ReceiptData)
		if err != nil {
			return nil, fmt.Errorf("receipt-data is not valid base64: %w", err)
		}
		return data, nil
	}
	return io.ReadAll(c.Request.Body)
}

func (h *handler) validate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, api.MaxReceiptSize)
	data, err := readReceipt(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, types.ReceiptResponse{
			Status: types.StatusMalformed,
			Error:  err.Error(),
		})
		return
	}
	if len(data) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, types.ReceiptResponse{
			Status: types.StatusMalformed,
			Error:  "empty receipt",
		})
		return
	}

	key := sha256.Sum256(data)
	if res, ok := h.cache.Get(key); ok {
		log.WithField("status", res.resp.Status).Debug("receipt cache hit")
		c.JSON(res.code, res.resp)
		return
	}

	// concurrent submissions of the same receipt share one verification
	v, _, shared := h.inflight.Do(string(key[:]), func() (any, error) {
		res := h.check(data)
		h.cache.Add(key, res)
		return res, nil
	})
	if shared {
		log.Debug("receipt verification shared with a concurrent request")
	}
	res := v.(result)
	c.JSON(res.code, res.resp)
}

func (h *handler) check(data []byte) result {
	r, err := receipt.Parse(data, h.verifier)
	if err != nil {
		return failure(err)
	}
	info, err := r.Info()
	if err != nil {
		return failure(err)
	}

	if purchases := model.NewPurchases(info); len(purchases) > 0 {
		if err := h.db.SavePurchases(info.BundleID, purchases); err != nil {
			log.WithError(err).WithField("bundle_id", info.BundleID).Error("failed to store purchases")
		}
	}
	log.WithFields(log.Fields{
		"bundle_id": info.BundleID,
		"purchases": len(info.InAppPurchases),
	}).Info("validated receipt")

	return result{
		code: http.StatusOK,
		resp: types.ReceiptResponse{Status: types.StatusValid, Receipt: info},
	}
}

func failure(err error) result {
	status := types.StatusMalformed
	if errors.Is(err, receipt.ErrUntrustedSigner) || errors.Is(err, receipt.ErrSignatureMismatch) {
		status = types.StatusUnauthenticated
	}
	stage := receipt.StageOf(err)
	log.WithError(err).WithField("stage", stage).Warn("rejected receipt")
	return result{
		code: http.StatusUnprocessableEntity,
		resp: types.ReceiptResponse{
			Status: status,
			Stage:  stage.String(),
			Error:  err.Error(),
		},
	}
}

func (h *handler) getPurchase(c *gin.Context) {
	p, err := h.db.GetPurchase(c.Param("transaction_id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, types.GenericError{Error: err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, types.GenericError{Error: err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, p)
}
