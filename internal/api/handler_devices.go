package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/store"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 366
)

// deviceResponse is the flattened device shape of the API.
type deviceResponse struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Region         string      `json:"region"`
	Subregion      string      `json:"subregion"`
	Facility       string      `json:"facility"`
	State          fleet.State `json:"state"`
	IsLive         bool        `json:"isLive"`
	Defective      bool        `json:"defective"`
	LastSeen       *time.Time  `json:"lastSeen"`
	Score          float64     `json:"score"`
	RuntimeMinutes float64     `json:"runtimeMinutes"`
}

type appUsageResponse struct {
	App     string  `json:"app"`
	Seconds float64 `json:"seconds"`
}

type dayUsageResponse struct {
	Date           string             `json:"date"`
	RuntimeMinutes float64            `json:"runtimeMinutes"`
	Apps           []appUsageResponse `json:"apps"`
	Live           bool               `json:"live"`
}

type deviceDetailResponse struct {
	deviceResponse
	Today   dayUsageResponse   `json:"today"`
	History []dayUsageResponse `json:"history"`
}

func (h *Handler) toDeviceResponse(d fleet.Device, at time.Time) deviceResponse {
	return deviceResponse{
		ID:             d.ID,
		Name:           d.DisplayName(),
		Region:         d.LocationKey(fleet.LevelRegion),
		Subregion:      d.LocationKey(fleet.LevelSubregion),
		Facility:       d.LocationKey(fleet.LevelFacility),
		State:          h.live.State(d, at),
		IsLive:         h.live.IsLive(d, at),
		Defective:      d.Defective,
		LastSeen:       d.LastSeen,
		Score:          fleet.DisplayScore(fleet.ResolveScore(d.ScoreFields())),
		RuntimeMinutes: d.RuntimeMinutes,
	}
}

func toDayUsage(day time.Time, u fleet.DayUsage, live bool) dayUsageResponse {
	apps := make([]appUsageResponse, 0, len(u.NetAppSeconds))
	for _, a := range u.SortedApps() {
		apps = append(apps, appUsageResponse{App: a.App, Seconds: a.Seconds})
	}
	return dayUsageResponse{
		Date:           day.Format("2006-01-02"),
		RuntimeMinutes: u.NetRuntimeMinutes,
		Apps:           apps,
		Live:           live,
	}
}

// GetFacilityDevices handles GET /api/facilities/{facility}/devices.
func (h *Handler) GetFacilityDevices(c *gin.Context) {
	at, ok := referenceTime(c)
	if !ok {
		return
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	devices, err := h.store.Devices(c.Request.Context(), store.DeviceFilter{Facilities: []string{c.Param("facility")}})
	if err != nil {
		h.log.Error("failed to list facility devices", zap.String("facility", c.Param("facility")), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve devices"})
		return
	}
	devices = fleet.ApplyOverrides(devices, fleet.NewOverrideSet(overrideIDs(c)...))

	response := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		response = append(response, h.toDeviceResponse(d, at))
	}
	c.JSON(http.StatusOK, response)
}

// GetDevice handles GET /api/devices/{device_id}: the device, today's usage so far and
// its reconciled daily history.
func (h *Handler) GetDevice(c *gin.Context) {
	at, ok := referenceTime(c)
	if !ok {
		return
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	days := defaultHistoryDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryDays {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'days', expected 1-366"})
			return
		}
		days = n
	}

	ctx := c.Request.Context()
	d, err := h.store.Device(ctx, c.Param("device_id"))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}
	if err != nil {
		h.log.Error("failed to fetch device", zap.String("device_id", c.Param("device_id")), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve device"})
		return
	}
	d = fleet.ApplyOverrides([]fleet.Device{d}, fleet.NewOverrideSet(overrideIDs(c)...))[0]

	today := fleet.Day(at)
	from := today.AddDate(0, 0, -days)
	history, err := h.store.History(ctx, []string{d.ID}, from, today)
	if err != nil {
		h.log.Error("failed to fetch history", zap.String("device_id", d.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}
	entries := history[d.ID]

	var prior *fleet.Counters
	if p := fleet.PriorEntry(entries, at); p != nil {
		counters := p.Counters()
		prior = &counters
	}

	response := deviceDetailResponse{
		deviceResponse: h.toDeviceResponse(d, at),
		Today:          toDayUsage(today, h.rec.ReconcileDay(d.Counters(), prior), true),
		History:        []dayUsageResponse{},
	}
	reconciled := h.rec.ReconcileHistory(entries, time.Time{})
	for i := len(reconciled) - 1; i >= 0; i-- {
		day := reconciled[i]
		// The oldest fetched entry only anchors the first delta.
		if day.Entry.Date.Equal(from) {
			continue
		}
		response.History = append(response.History, toDayUsage(day.Entry.Date, day.Usage, false))
	}
	c.JSON(http.StatusOK, response)
}
