// Package handlers adapts the domain services to HTTP. Handlers decode and
// validate input, take the caller from the request context and leave every
// authorization decision to the services.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/api/dto"
	"github.com/hugh/ia-marketing/internal/api/validation"
	"github.com/hugh/ia-marketing/internal/apperr"
)

const maxBodyBytes = 1 << 20

var errBadBody = apperr.Validation("invalid request body", nil)

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required", nil)
		}
		return errBadBody.Wrap(err)
	}
	return validation.Struct(dst)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return validation.ParseUUID(name, chi.URLParam(r, name))
}

// queryUUID returns nil when the parameter is absent.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := validation.ParseUUID(name, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func pagination(r *http.Request) dto.PaginationParams {
	p := dto.PaginationParams{Page: queryInt(r, "page"), PerPage: queryInt(r, "per_page")}
	p.Normalize()
	return p
}
