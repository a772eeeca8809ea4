package admin

import (
	"net/http"
	"time"

	"github.com/nexusgate/gateway/internal/httpserver"
	"github.com/nexusgate/gateway/pkg/ratelimiter"
)

// usageStatsResponse supplements the distilled spec with the reference
// proxy's rate_limiter.get_usage_stats: current global RPM window usage
// against its configured ceiling, for an operator dashboard. The IP fields
// are always 0, and TPM and per-credential usage are not reported.
type usageStatsResponse struct {
	WindowSeconds int `json:"window_seconds"`
	GlobalRPM     int `json:"global_rpm_used"`
	GlobalRPMMax  int `json:"global_rpm_limit"`
	IPRPM         int `json:"ip_rpm_used"`
	IPRPMMax      int `json:"ip_rpm_limit"`
}

func (h *Handler) rateLimitUsage(w http.ResponseWriter, r *http.Request) {
	window := h.limits.Window
	if window <= 0 {
		window = time.Minute
	}

	globalUsed, err := h.limiter.Usage(r.Context(), ratelimiter.DimensionGlobal, "all:rpm", window)
	if err != nil {
		h.logger.Error("reading global rate limit usage", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "reading rate limit usage failed")
		return
	}

	httpserver.Respond(w, http.StatusOK, usageStatsResponse{
		WindowSeconds: int(window.Seconds()),
		GlobalRPM:     globalUsed,
		GlobalRPMMax:  h.limits.GlobalRPM,
	})
}
