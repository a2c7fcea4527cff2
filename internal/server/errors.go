package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	paymentdomain "github.com/railzwaylabs/aquaduct/internal/payment/domain"
	ratedomain "github.com/railzwaylabs/aquaduct/internal/rate/domain"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
)

const (
	errorTypeInvalidRequest = "invalid_request_error"
	errorTypeNotFound       = "not_found_error"
	errorTypeConflict       = "conflict_error"
	errorTypeRateLimit      = "rate_limit_error"
	errorTypeAPI            = "api_error"
)

// APIError is the body of every failed response: {"error": {...}}.
type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

var (
	ErrInvalidRequest = &APIError{Status: http.StatusBadRequest, Type: errorTypeInvalidRequest, Code: "invalid_request", Message: "invalid request"}
	ErrInternal       = &APIError{Status: http.StatusInternalServerError, Type: errorTypeAPI, Code: "internal_error", Message: "internal server error"}
)

func invalidRequestError() *APIError {
	return ErrInvalidRequest
}

func newValidationError(param, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Type: errorTypeInvalidRequest, Code: code, Message: message, Param: param}
}

type errorMapping struct {
	err    error
	status int
	kind   string
}

var errorMappings = []errorMapping{
	{consumerdomain.ErrConsumerNotFound, http.StatusNotFound, errorTypeNotFound},
	{billingdomain.ErrBillingNotFound, http.StatusNotFound, errorTypeNotFound},
	{paymentdomain.ErrPaymentNotFound, http.StatusNotFound, errorTypeNotFound},
	{notificationdomain.ErrSubscriptionMissing, http.StatusNotFound, errorTypeNotFound},

	{consumerdomain.ErrDuplicateAccountNo, http.StatusConflict, errorTypeConflict},
	{billingdomain.ErrConsumerNotEligible, http.StatusConflict, errorTypeConflict},
	{billingdomain.ErrConsumerDisconnected, http.StatusConflict, errorTypeConflict},
	{billingdomain.ErrConsumerBusy, http.StatusConflict, errorTypeConflict},
	{billingdomain.ErrDuplicateBill, http.StatusConflict, errorTypeConflict},
	{billingdomain.ErrBillingNotOverdue, http.StatusConflict, errorTypeConflict},
	{paymentdomain.ErrBillingAlreadyPaid, http.StatusConflict, errorTypeConflict},

	{billingdomain.ErrNotifyThrottled, http.StatusTooManyRequests, errorTypeRateLimit},

	{billingdomain.ErrNegativeUsage, http.StatusUnprocessableEntity, errorTypeInvalidRequest},
	{ratedomain.ErrRateNotFound, http.StatusUnprocessableEntity, errorTypeInvalidRequest},

	{consumerdomain.ErrInvalidID, http.StatusBadRequest, errorTypeInvalidRequest},
	{consumerdomain.ErrInvalidName, http.StatusBadRequest, errorTypeInvalidRequest},
	{consumerdomain.ErrInvalidAccountNo, http.StatusBadRequest, errorTypeInvalidRequest},
	{consumerdomain.ErrInvalidAccountType, http.StatusBadRequest, errorTypeInvalidRequest},
	{ratedomain.ErrInvalidAccountType, http.StatusBadRequest, errorTypeInvalidRequest},
	{ratedomain.ErrInvalidRate, http.StatusBadRequest, errorTypeInvalidRequest},
	{ratedomain.ErrInvalidPenalty, http.StatusBadRequest, errorTypeInvalidRequest},
	{ratedomain.ErrInvalidEffective, http.StatusBadRequest, errorTypeInvalidRequest},
	{billingdomain.ErrInvalidID, http.StatusBadRequest, errorTypeInvalidRequest},
	{billingdomain.ErrInvalidReading, http.StatusBadRequest, errorTypeInvalidRequest},
	{billingdomain.ErrInvalidAdditionalFees, http.StatusBadRequest, errorTypeInvalidRequest},
	{billingdomain.ErrInvalidBillingDate, http.StatusBadRequest, errorTypeInvalidRequest},
	{paymentdomain.ErrInvalidID, http.StatusBadRequest, errorTypeInvalidRequest},
	{paymentdomain.ErrInvalidAmount, http.StatusBadRequest, errorTypeInvalidRequest},
	{paymentdomain.ErrInvalidMethod, http.StatusBadRequest, errorTypeInvalidRequest},
	{notificationdomain.ErrInvalidID, http.StatusBadRequest, errorTypeInvalidRequest},
	{notificationdomain.ErrInvalidSubscription, http.StatusBadRequest, errorTypeInvalidRequest},
	{auditdomain.ErrInvalidExportRange, http.StatusBadRequest, errorTypeInvalidRequest},
	{pagination.ErrInvalidPageToken, http.StatusBadRequest, errorTypeInvalidRequest},
}

func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return &APIError{Status: m.status, Type: m.kind, Code: m.err.Error(), Message: m.err.Error()}
		}
	}
	return ErrInternal
}

// AbortWithError writes the error envelope and stops the handler chain.
// Unknown errors are reported as 500 and kept on the context for the access log.
func AbortWithError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr == ErrInternal {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
}
