package models

// ListAlertsRequest filters the alert listing endpoint. Since accepts
// RFC3339 or unix seconds; Limit caps the number of rows returned.
type ListAlertsRequest struct {
	Status string `query:"status" default:"ACTIVE" validate:"oneof=ACTIVE CLEARED ALL"`
	Since  string `query:"since"`
	Limit  string `query:"limit"`
}

// GetAlertRequest fetches the alert for one instrument.
type GetAlertRequest struct {
	Token string `param:"token" validate:"required"`
}

// TriggerScanResponse is returned by the manual scan trigger.
type TriggerScanResponse struct {
	Seq uint64 `json:"seq"`
}

// CycleSummary is the public view of a completed cycle.
type CycleSummary struct {
	Seq        uint64 `json:"seq"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Scanned    int    `json:"scanned"`
	Failed     int    `json:"failed"`
	Active     int    `json:"active_alerts"`
}
