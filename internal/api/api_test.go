package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fleet-audit-backend/config"
	"fleet-audit-backend/internal/db"
	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/report"
	"fleet-audit-backend/internal/store"
)

var apiAt = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", regexp.MustCompile(`\W`).ReplaceAllString(t.Name(), "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	sqlDB, _ := gormDB.DB()
	t.Cleanup(func() { sqlDB.Close() })

	s := store.NewGormStore(gormDB, zap.NewNop())
	seed(t, s)

	live := fleet.NewLiveness(40 * time.Second)
	rec := fleet.NewReconciler(fleet.DefaultReconcileParams, zap.NewNop())
	synth := report.NewSynthesizer(s, live, rec, report.Options{}, zap.NewNop())
	h := NewHandler(s, live, rec, synth, zap.NewNop())

	return NewRouter(h, config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTL: time.Second})
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	fresh := apiAt.Add(-5 * time.Second)
	stale := apiAt.Add(-2 * time.Minute)

	yesterday := []store.TelemetryItem{
		{ID: "k1", Name: "Kiosk 1", Location: "EMEA/DACH/Munich", Status: "online", LastSeenParsed: &fresh,
			RuntimeMinutes: 50000, AppSeconds: map[string]float64{"browser": 3000}},
	}
	require.NoError(t, s.UpsertTelemetry(ctx, yesterday))
	_, err := s.SnapshotDay(ctx, apiAt.AddDate(0, 0, -1))
	require.NoError(t, err)

	require.NoError(t, s.UpsertTelemetry(ctx, []store.TelemetryItem{
		{ID: "k1", Name: "Kiosk 1", Location: "EMEA/DACH/Munich", Status: "online", LastSeenParsed: &fresh,
			RuntimeMinutes: 50120, AppSeconds: map[string]float64{"browser": 3605, "editor": 5}},
		{ID: "k2", Name: "Kiosk 2", Location: "EMEA/DACH/Munich", Status: "online", LastSeenParsed: &stale},
		{ID: "k3", Name: "Kiosk 3", Location: "APAC/ANZ/Sydney", Status: "online", LastSeenParsed: &fresh},
	}))
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func postReport(r *gin.Engine, query string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/reports"+query, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestGetOverview(t *testing.T) {
	router := setupRouter(t)

	w := get(router, "/api/overview?at="+apiAt.Format(time.RFC3339)+"&defective=k3")
	require.Equal(t, http.StatusOK, w.Code)

	var resp overviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Totals.DeviceCount)
	assert.Equal(t, 1, resp.Totals.OnlineCount)
	assert.Equal(t, 1, resp.Totals.OfflineCount)
	assert.Equal(t, 1, resp.Totals.DefectiveCount)
	require.Len(t, resp.Groups, 2)
	assert.Equal(t, "APAC", resp.Groups[0].Key)
	assert.Equal(t, 1, resp.Groups[1].ChildGroupCount)
}

func TestGetOverview_InvalidAt(t *testing.T) {
	router := setupRouter(t)

	w := get(router, "/api/overview?at=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRegionFacilities(t *testing.T) {
	router := setupRouter(t)

	w := get(router, "/api/regions/EMEA/facilities?at="+apiAt.Format(time.RFC3339))
	require.Equal(t, http.StatusOK, w.Code)

	var resp overviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, "Munich", resp.Groups[0].Key)
	assert.Equal(t, 2, resp.Groups[0].DeviceCount)
}

func TestGetDevice(t *testing.T) {
	router := setupRouter(t)

	w := get(router, "/api/devices/k1?at="+apiAt.Format(time.RFC3339))
	require.Equal(t, http.StatusOK, w.Code)

	var resp deviceDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, fleet.StateOnline, resp.State)
	assert.Equal(t, 120.0, resp.Today.RuntimeMinutes)
	assert.Equal(t, []appUsageResponse{{App: "browser", Seconds: 605}}, resp.Today.Apps)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "2024-05-01", resp.History[0].Date)

	assert.Equal(t, http.StatusNotFound, get(router, "/api/devices/nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/devices/k1?days=0").Code)
}

func TestPostReport_JSON(t *testing.T) {
	router := setupRouter(t)

	w := postReport(router, "?format=json", gin.H{
		"scope":      "custom",
		"facilities": []string{"Munich", "Oslo"},
		"at":         apiAt,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var wb report.Workbook
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wb))
	require.Len(t, wb.Sheets, 1)
	assert.Equal(t, "Audit", wb.Sheets[0].Name)
	assert.Len(t, wb.Sheets[0].Rows, 2)
}

func TestPostReport_XLSX(t *testing.T) {
	router := setupRouter(t)

	w := postReport(router, "", gin.H{"scope": "global", "at": apiAt})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "fleet-global-")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Regions"}, f.GetSheetList())
}

func TestPostReport_Errors(t *testing.T) {
	router := setupRouter(t)

	cases := []struct {
		name  string
		query string
		body  any
		want  int
	}{
		{"unknown scope", "", gin.H{"scope": "planet"}, http.StatusBadRequest},
		{"missing scope", "", gin.H{}, http.StatusBadRequest},
		{"bad format", "?format=pdf", gin.H{"scope": "global"}, http.StatusBadRequest},
		{"bad date", "", gin.H{"scope": "custom", "from": "May 1st"}, http.StatusBadRequest},
		{"inverted range", "", gin.H{"scope": "custom", "from": "2024-05-02", "to": "2024-05-01"}, http.StatusBadRequest},
		{"device needs one id", "", gin.H{"scope": "device"}, http.StatusBadRequest},
		{"empty selection", "", gin.H{"scope": "custom", "deviceIds": []string{"ghost"}}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postReport(router, tc.query, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestHealthz(t *testing.T) {
	router := setupRouter(t)

	w := get(router, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
