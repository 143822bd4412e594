package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleet-audit-backend/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reportRequest struct {
	Scope        string     `json:"scope" binding:"required"`
	Regions      []string   `json:"regions"`
	Facilities   []string   `json:"facilities"`
	DeviceIDs    []string   `json:"deviceIds"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	Defective    []string   `json:"defective"`
	At           *time.Time `json:"at"`
	IncludeToday bool       `json:"includeToday"`
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (r reportRequest) toRequest() (report.Request, error) {
	scope, err := report.ParseScope(r.Scope)
	if err != nil {
		return report.Request{}, err
	}
	from, err := parseDay(r.From)
	if err != nil {
		return report.Request{}, fmt.Errorf("invalid 'from', use YYYY-MM-DD: %w", err)
	}
	to, err := parseDay(r.To)
	if err != nil {
		return report.Request{}, fmt.Errorf("invalid 'to', use YYYY-MM-DD: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return report.Request{}, errors.New("'to' is before 'from'")
	}

	req := report.Request{
		Scope: scope,
		Selection: report.Selection{
			Regions:    r.Regions,
			Facilities: r.Facilities,
			DeviceIDs:  r.DeviceIDs,
			From:       from,
			To:         to,
		},
		Defective:    r.Defective,
		IncludeToday: r.IncludeToday,
	}
	if r.At != nil {
		req.At = *r.At
	}
	return req, nil
}

// PostReport handles POST /api/reports?format=xlsx|json.
func (h *Handler) PostReport(c *gin.Context) {
	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "json" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or json"})
		return
	}

	var body reportRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req, err := body.toRequest()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Defective = append(req.Defective, overrideIDs(c)...)

	wb, err := h.synth.Synthesize(c.Request.Context(), req)
	switch {
	case errors.Is(err, report.ErrEmptySelection):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case errors.Is(err, report.ErrUnknownScope), errors.Is(err, report.ErrInvalidSelection):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Error("report synthesis failed", zap.String("scope", string(req.Scope)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to build report"})
		return
	}

	if format == "json" {
		c.JSON(http.StatusOK, wb)
		return
	}

	filename := fmt.Sprintf("fleet-%s-%s.xlsx", req.Scope, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", xlsxContentType)
	c.Status(http.StatusOK)
	if err := report.WriteXLSX(wb, c.Writer); err != nil {
		h.log.Error("failed to write xlsx", zap.Error(err))
	}
}
