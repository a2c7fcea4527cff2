package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type createBillingRequest struct {
	ConsumerID      string           `json:"consumer_id"`
	BillingDate     string           `json:"billing_date"`
	DueDate         string           `json:"due_date"`
	PreviousReading *decimal.Decimal `json:"previous_reading"`
	PresentReading  decimal.Decimal  `json:"present_reading"`
	AdditionalFees  decimal.Decimal  `json:"additional_fees"`
}

type updateBillingRequest struct {
	BillingDate     *string          `json:"billing_date,omitempty"`
	DueDate         *string          `json:"due_date,omitempty"`
	PreviousReading *decimal.Decimal `json:"previous_reading,omitempty"`
	PresentReading  *decimal.Decimal `json:"present_reading,omitempty"`
	AdditionalFees  *decimal.Decimal `json:"additional_fees,omitempty"`
}

// billingWithDelivery pairs a committed billing with the advisory outcome of its notifications.
type billingWithDelivery struct {
	Billing       *billingdomain.Billing             `json:"billing"`
	Notifications *notificationdomain.DeliveryReport `json:"notifications,omitempty"`
}

func (s *Server) CreateBilling(c *gin.Context) {
	var req createBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	billingDate, err := parseDate(req.BillingDate)
	if err != nil {
		AbortWithError(c, newValidationError("billing_date", "invalid_billing_date", "billing_date must be YYYY-MM-DD or RFC 3339"))
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "due_date must be YYYY-MM-DD or RFC 3339"))
		return
	}

	billing, report, err := s.billingSvc.Create(c.Request.Context(), billingdomain.CreateRequest{
		ConsumerID:      strings.TrimSpace(req.ConsumerID),
		BillingDate:     billingDate,
		DueDate:         dueDate,
		PreviousReading: req.PreviousReading,
		PresentReading:  req.PresentReading,
		AdditionalFees:  req.AdditionalFees,
		Actor:           actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, billingWithDelivery{Billing: billing, Notifications: report})
}

func (s *Server) ListBillings(c *gin.Context) {
	var query struct {
		pagination.Pagination
		ConsumerID string `form:"consumer_id"`
		Status     string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billingSvc.List(c.Request.Context(), billingdomain.ListRequest{
		ConsumerID: query.ConsumerID,
		Status:     query.Status,
		PageToken:  query.PageToken,
		PageSize:   pagination.ClampPageSize(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, resp.Billings, &resp.PageInfo)
}

func (s *Server) GetBilling(c *gin.Context) {
	billing, err := s.billingSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, billing)
}

func (s *Server) UpdateBilling(c *gin.Context) {
	var req updateBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	billingDate, err := parseOptionalDate(req.BillingDate)
	if err != nil {
		AbortWithError(c, newValidationError("billing_date", "invalid_billing_date", "billing_date must be YYYY-MM-DD or RFC 3339"))
		return
	}
	dueDate, err := parseOptionalDate(req.DueDate)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "due_date must be YYYY-MM-DD or RFC 3339"))
		return
	}

	billing, err := s.billingSvc.Update(c.Request.Context(), c.Param("id"), billingdomain.UpdateRequest{
		BillingDate:     billingDate,
		DueDate:         dueDate,
		PreviousReading: req.PreviousReading,
		PresentReading:  req.PresentReading,
		AdditionalFees:  req.AdditionalFees,
		Actor:           actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, billing)
}

func (s *Server) DeleteBilling(c *gin.Context) {
	if err := s.billingSvc.Delete(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// NotifyBilling re-sends the overdue notice of a billing.
func (s *Server) NotifyBilling(c *gin.Context) {
	billing, report, err := s.billingSvc.Notify(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, billingWithDelivery{Billing: billing, Notifications: report})
}

func (s *Server) ListBillingPayments(c *gin.Context) {
	payments, err := s.paymentSvc.ListByBilling(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, payments)
}
