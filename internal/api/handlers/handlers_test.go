package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/ia-marketing/internal/api/dto"
	"github.com/hugh/ia-marketing/internal/api/handlers"
	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/app"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProjectRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)

	services, err := app.NewServices(tc.DB, testutil.Logger())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService, services.Profiles, testutil.Logger()))
	handler := handlers.NewProjectHandler(services.Projects, testutil.Logger())
	r.Post("/api/v1/organizations/{orgID}/projects", handler.Create)
	return r, tc
}

func TestProjectHandler_CreateValidation(t *testing.T) {
	router, tc := setupProjectRouter(t)
	path := "/api/v1/organizations/" + tc.Org.ID.String() + "/projects"

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		field  string
	}{
		{"blank name", path, map[string]any{"name": "   "}, http.StatusBadRequest, "name"},
		{"long description", path, map[string]any{"name": "ok", "description": string(make([]byte, 2001))}, http.StatusBadRequest, "description"},
		{"bad org id", "/api/v1/organizations/xyz/projects", map[string]any{"name": "ok"}, http.StatusBadRequest, "orgID"},
		{"created", path, map[string]any{"name": "Autumn"}, http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.AuthenticatedRequest(t, http.MethodPost, tt.path, tt.body, tc.Token)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			testutil.AssertStatus(t, rr, tt.status)
			if tt.field != "" {
				var body dto.ErrorResponse
				testutil.ParseJSONResponse(t, rr, &body)
				assert.Equal(t, "validation_error", body.Kind)
				assert.Contains(t, body.Details, tt.field)
			}
		})
	}
}

func TestProjectHandler_MalformedJSON(t *testing.T) {
	router, tc := setupProjectRouter(t)

	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/organizations/"+tc.Org.ID.String()+"/projects", nil, tc.Token)
	req.Body = http.NoBody
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	req = testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/organizations/"+tc.Org.ID.String()+"/projects", nil, tc.Token)
	req.Body = errReader{}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("reset by peer") }
func (errReader) Close() error { return nil }
