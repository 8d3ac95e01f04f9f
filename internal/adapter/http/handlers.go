package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/usecase/issuance"
)

type issueRequest struct {
	Phone     string          `json:"phone"`
	Amount    decimal.Decimal `json:"amount"`
	NetworkID int             `json:"networkId"`
}

type issueResponse struct {
	TransactionID string    `json:"transactionId"`
	InvoiceID     string    `json:"invoiceId"`
	InvoiceString string    `json:"invoiceString"`
	AmountCrypto  string    `json:"amountCrypto"`
	ExpiresAt     time.Time `json:"expiresAt"`
	IsSimulated   bool      `json:"isSimulated"`
}

type transactionResponse struct {
	ID                   string     `json:"id"`
	Status               string     `json:"status"`
	RecipientPhone       string     `json:"recipientPhone"`
	NetworkID            int        `json:"networkId,omitempty"`
	Amount               string     `json:"amount"`
	Currency             string     `json:"currency"`
	AmountCrypto         string     `json:"amountCrypto"`
	InvoiceID            string     `json:"invoiceId"`
	InvoiceString        string     `json:"invoiceString"`
	IsSimulated          bool       `json:"isSimulated"`
	ExpiresAt            time.Time  `json:"expiresAt"`
	SecondsRemaining     int64      `json:"secondsRemaining"`
	PaidAt               *time.Time `json:"paidAt,omitempty"`
	MobileMoneyReference string     `json:"mobileMoneyReference,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

type checkResponse struct {
	ID                   string     `json:"id"`
	Status               string     `json:"status"`
	PaidAt               *time.Time `json:"paidAt,omitempty"`
	MobileMoneyReference string     `json:"mobileMoneyReference,omitempty"`
	Message              string     `json:"message,omitempty"`
}

func (s *Server) handleIssue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := s.deps.Issuer.Issue(c.Request.Context(), issuance.IssueInput{
		Phone:     req.Phone,
		Amount:    req.Amount,
		NetworkID: req.NetworkID,
	})
	if err != nil {
		s.writeError(c, err, "failed to create invoice")
		return
	}

	c.JSON(http.StatusCreated, issueResponse{
		TransactionID: result.TransactionID.String(),
		InvoiceID:     result.InvoiceID,
		InvoiceString: result.InvoiceString,
		AmountCrypto:  result.AmountCrypto.String(),
		ExpiresAt:     result.ExpiresAt,
		IsSimulated:   result.IsSimulated,
	})
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	tx, err := s.deps.Reconciler.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err, "failed to load transaction")
		return
	}
	c.JSON(http.StatusOK, s.toTransactionResponse(tx))
}

func (s *Server) handleCheckPayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	out, err := s.deps.Reconciler.Check(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err, "failed to check payment")
		return
	}
	c.JSON(http.StatusOK, checkResponse{
		ID:                   out.Transaction.ID.String(),
		Status:               string(out.Status()),
		PaidAt:               out.PaidAt,
		MobileMoneyReference: out.MobileMoneyReference,
		Message:              out.Message,
	})
}

func (s *Server) handleSweep(c *gin.Context) {
	report, err := s.deps.Sweeper.Run(c.Request.Context())
	if err != nil && report == nil {
		s.writeError(c, err, "failed to sweep transactions")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleNetworks(c *gin.Context) {
	networks := []domain.MobileNetwork{}
	if s.deps.Catalog != nil {
		networks = s.deps.Catalog.List()
	}
	c.JSON(http.StatusOK, gin.H{"networks": networks})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) toTransactionResponse(tx *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:                   tx.ID.String(),
		Status:               string(tx.Status),
		RecipientPhone:       tx.RecipientPhone,
		NetworkID:            tx.NetworkID,
		Amount:               tx.Amount.String(),
		Currency:             tx.Currency,
		AmountCrypto:         tx.AmountCrypto.String(),
		InvoiceID:            tx.InvoiceID,
		InvoiceString:        tx.InvoiceString,
		IsSimulated:          tx.IsSimulated(),
		ExpiresAt:            tx.ExpiresAt,
		SecondsRemaining:     int64(tx.TimeRemaining(s.opts.Now()) / time.Second),
		PaidAt:               tx.PaidAt,
		MobileMoneyReference: tx.MobileMoneyReference,
		CreatedAt:            tx.CreatedAt,
		UpdatedAt:            tx.UpdatedAt,
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction ID is required"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps the domain error taxonomy onto HTTP statuses
func (s *Server) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
	case errors.Is(err, domain.ErrUpstreamAuth), errors.Is(err, domain.ErrUpstreamTransient):
		s.logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": fallback})
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": fallback + ": deadline exceeded"})
	default:
		s.logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
