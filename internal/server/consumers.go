package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
)

type createConsumerRequest struct {
	AccountNo   string `json:"account_no"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address     string `json:"address"`
	AccountType string `json:"account_type"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	UserID      string `json:"user_id"`
}

func (s *Server) CreateConsumer(c *gin.Context) {
	var req createConsumerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	consumer, err := s.consumerSvc.Create(c.Request.Context(), consumerdomain.CreateRequest{
		AccountNo:   req.AccountNo,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Address:     req.Address,
		AccountType: req.AccountType,
		Email:       req.Email,
		Phone:       req.Phone,
		UserID:      req.UserID,
		Actor:       actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, consumer)
}

func (s *Server) ListConsumers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		AccountType string `form:"account_type"`
		Search      string `form:"search"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.consumerSvc.List(c.Request.Context(), consumerdomain.ListRequest{
		AccountType: strings.TrimSpace(query.AccountType),
		Search:      strings.TrimSpace(query.Search),
		PageToken:   query.PageToken,
		PageSize:    pagination.ClampPageSize(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, resp.Consumers, &resp.PageInfo)
}

// ListEligibleConsumers returns connected consumers that can be billed this month.
func (s *Server) ListEligibleConsumers(c *gin.Context) {
	consumers, err := s.billingSvc.ListEligibleConsumers(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, consumers)
}

func (s *Server) GetConsumer(c *gin.Context) {
	consumer, err := s.consumerSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, consumer)
}

func (s *Server) DisconnectConsumer(c *gin.Context) {
	s.setDisconnected(c, true)
}

func (s *Server) ReconnectConsumer(c *gin.Context) {
	s.setDisconnected(c, false)
}

func (s *Server) setDisconnected(c *gin.Context, disconnected bool) {
	consumer, err := s.consumerSvc.SetDisconnected(c.Request.Context(), c.Param("id"), disconnected, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, consumer)
}
