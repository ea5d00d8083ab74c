package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/api/dto"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	cause := errors.New("pq: connection refused")
	super := authz.Caller{UserID: uuid.New(), PlatformRole: models.PlatformRoleSuperadmin}
	member := authz.Caller{UserID: uuid.New()}

	tests := []struct {
		name      string
		err       error
		caller    *authz.Caller
		status    int
		kind      string
		wantCause bool
	}{
		{"not found", apperr.NotFound("project not found"), &member, http.StatusNotFound, "not_found", false},
		{"conflict", apperr.Conflict("project monthly credit cap exceeded"), &member, http.StatusConflict, "conflict", false},
		{"validation", apperr.Validation("invalid request", map[string]string{"name": "required"}), nil, http.StatusBadRequest, "validation_error", false},
		{"raw error hidden from members", cause, &member, http.StatusServiceUnavailable, "upstream_failure", false},
		{"raw error shown to superadmins", cause, &super, http.StatusServiceUnavailable, "upstream_failure", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil)
			if tt.caller != nil {
				req = req.WithContext(authz.WithCaller(req.Context(), *tt.caller))
			}
			rr := httptest.NewRecorder()

			Error(rr, req, nil, tt.err)

			assert.Equal(t, tt.status, rr.Code)
			var body dto.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
			assert.NotContains(t, body.Error, "pq:")
			if tt.wantCause {
				assert.Equal(t, "pq: connection refused", body.Details["cause"])
			} else {
				assert.NotContains(t, body.Details, "cause")
			}
		})
	}
}
