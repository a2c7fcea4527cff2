package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	ratedomain "github.com/railzwaylabs/aquaduct/internal/rate/domain"
	"github.com/shopspring/decimal"
)

type createRateRequest struct {
	AccountType   string          `json:"account_type"`
	RatePerUnit   decimal.Decimal `json:"rate_per_unit"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount"`
	EffectiveDate string          `json:"effective_date"`
}

func (s *Server) CreateRate(c *gin.Context) {
	var req createRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	effective, err := parseDate(req.EffectiveDate)
	if err != nil {
		AbortWithError(c, newValidationError("effective_date", "invalid_effective_date", "effective_date must be YYYY-MM-DD or RFC 3339"))
		return
	}

	rate, err := s.rateSvc.Create(c.Request.Context(), ratedomain.CreateRequest{
		AccountType:   req.AccountType,
		RatePerUnit:   req.RatePerUnit,
		PenaltyAmount: req.PenaltyAmount,
		EffectiveDate: effective,
		Actor:         actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rate)
}

func (s *Server) ListRates(c *gin.Context) {
	rates, err := s.rateSvc.List(c.Request.Context(), strings.TrimSpace(c.Query("account_type")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rates)
}
