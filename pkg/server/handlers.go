package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/taji-labs/signing-service/pkg/config"
	"github.com/taji-labs/signing-service/pkg/journal"
	"github.com/taji-labs/signing-service/pkg/types"
)

const (
	journalWriteTimeout = 2 * time.Second
	maxReceiptListLimit = 500
	healthTimeFormat    = "2006-01-02T15:04:05.000Z07:00"
)

type receiptResponse struct {
	Success bool             `json:"success"`
	Receipt *journal.Receipt `json:"receipt"`
}

type receiptListResponse struct {
	Success  bool               `json:"success"`
	Receipts []*journal.Receipt `json:"receipts"`
}

// StatusForKind maps a signing error kind onto its HTTP status.
func StatusForKind(kind types.ErrorKind) int {
	if kind.IsClientError() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleSignTransaction(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	start := s.now()

	req, status, message := decodeSignRequest(c.Request.Body)
	if req == nil {
		s.logger.Sugar().Infow("Rejected unreadable request body", "request_id", requestID, "status", status)
		c.JSON(status, failure(message))
		return
	}

	signed, event, err := s.gateway.Process(req)
	s.logEvent(requestID, event, err)

	chain := ""
	if signed != nil {
		chain = config.ChainLabel(signed.ChainID)
	}
	if s.metrics != nil {
		s.metrics.ObserveSigning(event, chain, s.now().Sub(start))
	}

	if err != nil {
		c.JSON(StatusForKind(types.KindOf(err)), failure(err.Error()))
		return
	}

	s.recordReceipt(c.Request.Context(), requestID, signed)

	c.JSON(http.StatusOK, types.SignTransactionResponse{
		Success:           true,
		SignedTransaction: signed.Envelope,
		TransactionHash:   signed.Hash.Hex(),
		From:              signed.From.Hex(),
		Message:           types.MessageSigned,
	})
}

// decodeSignRequest returns the decoded request, or nil with the status and message to
// reply with. An empty body decodes to an empty request so that validation reports
// the missing transaction.
func decodeSignRequest(body io.Reader) (*types.SignTransactionRequest, int, string) {
	req := &types.SignTransactionRequest{}
	if body == nil {
		return req, 0, ""
	}

	err := json.NewDecoder(body).Decode(req)
	if err == nil || errors.Is(err, io.EOF) {
		return req, 0, ""
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, http.StatusRequestEntityTooLarge, messageBodyTooBig
	}
	return nil, http.StatusBadRequest, messageBadBody
}

// logEvent emits the diagnostic record of one request. The event carries no key
// material; the error message is the caller-safe one.
func (s *Server) logEvent(requestID string, event *types.SigningEvent, err error) {
	sugar := s.logger.Sugar()
	kv := []interface{}{
		"request_id", requestID,
		"stage", event.Stage,
		"path", event.Path,
	}

	switch event.Stage {
	case types.StageSigned:
		sugar.Debugw("Prepared transaction request", "request_id", requestID, "fields", event.Fields)
		sugar.Infow("Transaction signed", append(kv,
			"from", event.From,
			"tx_hash", event.TxHash,
			"envelope_bytes", event.EnvelopeBytes,
			"chain_id", event.Fields[types.FieldChainID],
		)...)
	case types.StageRejected:
		sugar.Infow("Signing request rejected", append(kv,
			"error_kind", event.ErrorKind,
			"missing_fields", event.MissingFields,
		)...)
	default:
		sugar.Warnw("Transaction signing failed", append(kv,
			"error_kind", event.ErrorKind,
			"fields", event.Fields,
			"error", err,
		)...)
	}
}

// recordReceipt writes to the journal if one is configured. Failures are logged and
// counted; the signing response is unaffected.
func (s *Server) recordReceipt(ctx context.Context, requestID string, signed *types.SignedTransaction) {
	if s.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
	defer cancel()

	err := s.journal.Record(ctx, journal.NewReceipt(requestID, signed, s.now()))
	if s.metrics != nil {
		s.metrics.ObserveJournalWrite(err)
	}
	if err != nil {
		s.logger.Sugar().Errorw("Failed to record signing receipt",
			"request_id", requestID,
			"tx_hash", signed.Hash.Hex(),
			"error", err,
		)
	}
}

func (s *Server) handleGetReceipt(c *gin.Context) {
	receipt, err := s.journal.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Sugar().Errorw("Failed to load receipt", "request_id", c.GetString(requestIDKey), "error", err)
		c.JSON(http.StatusInternalServerError, failure(messageInternal))
		return
	}
	if receipt == nil {
		c.JSON(http.StatusNotFound, failure("Receipt not found"))
		return
	}
	c.JSON(http.StatusOK, receiptResponse{Success: true, Receipt: receipt})
}

func (s *Server) handleListReceipts(c *gin.Context) {
	from := c.Query("from")
	if !common.IsHexAddress(from) {
		c.JSON(http.StatusBadRequest, failure("Query parameter from must be an address"))
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxReceiptListLimit {
			c.JSON(http.StatusBadRequest, failure("Query parameter limit must be between 1 and "+strconv.Itoa(maxReceiptListLimit)))
			return
		}
		limit = parsed
	}

	receipts, err := s.journal.ListBySender(c.Request.Context(), from, limit)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to list receipts", "request_id", c.GetString(requestIDKey), "error", err)
		c.JSON(http.StatusInternalServerError, failure(messageInternal))
		return
	}
	c.JSON(http.StatusOK, receiptListResponse{Success: true, Receipts: receipts})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "ok",
		Service:   types.ServiceName,
		Timestamp: s.now().UTC().Format(healthTimeFormat),
	})
}

func (s *Server) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, failure(messageNotFound))
}

func (s *Server) handleMethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, failure(messageNoMethod))
}
