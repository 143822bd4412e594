package poller

import "fleet-audit-backend/internal/store"

// apiResponse models the top-level structure of the upstream telemetry response.
type apiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int                   `json:"page"`
		PageSize int                   `json:"pageSize"`
		Total    int                   `json:"total"`
		Items    []store.TelemetryItem `json:"items"`
	} `json:"data"`
}
