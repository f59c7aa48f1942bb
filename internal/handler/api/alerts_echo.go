package api

import (
	"errors"
	"time"

	models "NiftyScan/internal/domain/models"
	drepo "NiftyScan/internal/domain/repository"
	"NiftyScan/internal/usecase"
	xhttp "NiftyScan/pkg/http"
	xlogger "NiftyScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AlertsEchoHandler exposes the scan results over HTTP. Reads never block
// a running cycle; they serve whatever result was last swapped in.
type AlertsEchoHandler struct {
	logger  *xlogger.Logger
	scanner *usecase.Scanner
}

func NewAlertsEchoHandler(logger *xlogger.Logger, scanner *usecase.Scanner) *AlertsEchoHandler {
	return &AlertsEchoHandler{logger: logger, scanner: scanner}
}

func (h *AlertsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/alerts", h.ListAlerts)
	g.GET("/alerts/:token", h.GetAlert)
	g.GET("/cycles/latest", h.LatestCycle)
	g.POST("/scan", h.TriggerScan)
}

func (h *AlertsEchoHandler) ListAlerts(c echo.Context) error {
	req := &models.ListAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	alerts := h.scanner.ListAlerts(models.AlertStatus(req.Status))

	since := xhttp.ParseTimeDefault(req.Since, time.Time{})
	if !since.IsZero() {
		filtered := make([]*models.AlertRecord, 0, len(alerts))
		for _, a := range alerts {
			if !a.TriggeredAt.Before(since) {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	if limit := xhttp.ParseIntDefault(req.Limit, 0); limit > 0 && limit < len(alerts) {
		alerts = alerts[:limit]
	}

	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

func (h *AlertsEchoHandler) GetAlert(c echo.Context) error {
	req := &models.GetAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	alert, ok := h.scanner.GetAlert(req.Token)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no alert for token %s", req.Token))
	}
	return xhttp.SuccessResponse(c, alert)
}

func (h *AlertsEchoHandler) LatestCycle(c echo.Context) error {
	cur := h.scanner.Current()
	return xhttp.SuccessResponse(c, &models.CycleSummary{
		Seq:        cur.Seq,
		StartedAt:  cur.StartedAt.Format(time.RFC3339Nano),
		FinishedAt: cur.FinishedAt.Format(time.RFC3339Nano),
		Scanned:    cur.Scanned,
		Failed:     cur.Failed,
		Active:     len(cur.ByStatus(models.AlertActive)),
	})
}

func (h *AlertsEchoHandler) TriggerScan(c echo.Context) error {
	seq, err := h.scanner.TryStart()
	switch {
	case errors.Is(err, drepo.ErrBusy):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("scan cycle already running"))
	case errors.Is(err, drepo.ErrMarketClosed):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("market is closed"))
	case err != nil:
		h.logger.Error("trigger scan error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.AcceptedResponse(c, &models.TriggerScanResponse{Seq: seq})
}
