package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/railzwaylabs/aquaduct/internal/payment/domain"
	"github.com/shopspring/decimal"
)

type submitPaymentRequest struct {
	BillingID     string          `json:"billing_id"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transaction_id"`
	ReceiptPath   string          `json:"receipt_path"`
}

func (s *Server) SubmitPayment(c *gin.Context) {
	var req submitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.Submit(c.Request.Context(), paymentdomain.SubmitRequest{
		BillingID:     req.BillingID,
		AmountPaid:    req.AmountPaid,
		Method:        req.Method,
		TransactionID: req.TransactionID,
		ReceiptPath:   req.ReceiptPath,
		Actor:         actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, payment)
}

func (s *Server) VerifyPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Verify(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, payment)
}

func (s *Server) UnverifyPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Unverify(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, payment)
}

func (s *Server) DeletePayment(c *gin.Context) {
	if err := s.paymentSvc.Delete(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
