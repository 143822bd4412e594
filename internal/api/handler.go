package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/logging"
	"fleet-audit-backend/internal/report"
	"fleet-audit-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store store.Store
	live  fleet.Liveness
	rec   *fleet.Reconciler
	synth *report.Synthesizer
	log   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, live fleet.Liveness, rec *fleet.Reconciler, synth *report.Synthesizer, log *zap.Logger) *Handler {
	log = logging.OrNop(log)
	return &Handler{
		store: s,
		live:  live,
		rec:   rec,
		synth: synth,
		log:   log,
	}
}

// overrideIDs reads the client's defective set from repeated or comma separated
// "defective" query parameters.
func overrideIDs(c *gin.Context) []string {
	var ids []string
	for _, v := range c.QueryArray("defective") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// referenceTime parses the optional "at" query parameter. A zero time means now.
func referenceTime(c *gin.Context) (time.Time, bool) {
	raw := c.Query("at")
	if raw == "" {
		return time.Time{}, true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'at' timestamp format. Use RFC3339."})
		return time.Time{}, false
	}
	return at, true
}
