package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
)

const maxAuditExportRange = 90 * 24 * time.Hour

// ExportAuditLogs handles GET /api/audit/export?start_date&end_date[&format][&actions][&actor][&include_archived].
func (s *Server) ExportAuditLogs(c *gin.Context) {
	startDateStr := strings.TrimSpace(c.Query("start_date"))
	endDateStr := strings.TrimSpace(c.Query("end_date"))
	formatStr := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))
	actionsStr := strings.TrimSpace(c.Query("actions"))
	includeArchived, err := strconv.ParseBool(c.DefaultQuery("include_archived", "false"))
	if err != nil {
		AbortWithError(c, newValidationError("include_archived", "invalid_include_archived", "include_archived must be a boolean"))
		return
	}

	if startDateStr == "" || endDateStr == "" {
		AbortWithError(c, newValidationError("start_date", "missing_date_range", "start_date and end_date are required"))
		return
	}

	startDate, err := time.Parse(time.DateOnly, startDateStr)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "start_date must be YYYY-MM-DD"))
		return
	}
	endDate, err := time.Parse(time.DateOnly, endDateStr)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "end_date must be YYYY-MM-DD"))
		return
	}

	// end_date is inclusive
	endDate = endDate.Add(24 * time.Hour)

	if endDate.Before(startDate) {
		AbortWithError(c, auditdomain.ErrInvalidExportRange)
		return
	}
	if endDate.Sub(startDate) > maxAuditExportRange {
		AbortWithError(c, newValidationError("end_date", "export_range_too_large", "export range is limited to 90 days"))
		return
	}

	var format auditdomain.ExportFormat
	switch formatStr {
	case "csv":
		format = auditdomain.ExportFormatCSV
	case "json":
		format = auditdomain.ExportFormatJSON
	default:
		AbortWithError(c, newValidationError("format", "invalid_format", "format must be csv or json"))
		return
	}

	var actions []string
	if actionsStr != "" {
		for _, action := range strings.Split(actionsStr, ",") {
			if action = strings.TrimSpace(action); action != "" {
				actions = append(actions, action)
			}
		}
	}

	result, err := s.auditExportSvc.Export(c.Request.Context(), auditdomain.ExportRequest{
		StartDate: startDate,
		EndDate:   endDate,
		Format:    format,
		Actions:   actions,
		Actor:     strings.TrimSpace(c.Query("actor")),

		IncludeArchived: includeArchived,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("X-Audit-Export-Checksum", result.Checksum)
	c.Header("X-Audit-Export-Count", strconv.Itoa(result.Count))

	var contentType, filename string
	switch result.Format {
	case auditdomain.ExportFormatCSV:
		contentType = "text/csv"
		filename = "audit_export_" + startDateStr + "_" + endDateStr + ".csv"
	case auditdomain.ExportFormatJSON:
		contentType = "application/json"
		filename = "audit_export_" + startDateStr + "_" + endDateStr + ".json"
	}

	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, contentType, result.Data)
}
