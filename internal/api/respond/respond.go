// Package respond writes JSON bodies and maps service errors onto HTTP
// responses.
package respond

import (
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"

	"github.com/hugh/ia-marketing/internal/api/dto"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/authz"
)

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as an ErrorResponse. Upstream failures are logged with
// their cause; the cause is shown only to platform superadmins.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	appErr := apperr.From(err)

	body := dto.ErrorResponse{
		Error: appErr.Reason,
		Kind:  string(appErr.Kind),
	}
	if len(appErr.Fields) > 0 {
		body.Details = maps.Clone(appErr.Fields)
	}

	if appErr.Kind == apperr.KindUpstream {
		if log != nil {
			log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		if caller, ok := authz.CallerFrom(r.Context()); ok && caller.IsPlatformSuperadmin() && appErr.Err != nil {
			if body.Details == nil {
				body.Details = map[string]string{}
			}
			body.Details["cause"] = appErr.Err.Error()
		}
	}

	JSON(w, appErr.HTTPStatus(), body)
}

// Status writes a bare error for responses outside the taxonomy, such as
// rate limiting.
func Status(w http.ResponseWriter, status int, kind, reason string) {
	JSON(w, status, dto.ErrorResponse{Error: reason, Kind: kind})
}
