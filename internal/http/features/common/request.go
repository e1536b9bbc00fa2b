// Package common holds request helpers shared by the feature handlers.
package common

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

// Principal returns the authenticated principal, writing a 401 when the
// auth middleware did not run.
func Principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := domain.PrincipalFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}

// PathID parses the named URL parameter as a UUID, writing a 400 on failure.
func PathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// ListOptions reads limit and offset query parameters. Services clamp the
// limit; here only malformed values are rejected.
func ListOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, domain.ErrValidation("limit must be a non-negative integer")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, domain.ErrValidation("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts, nil
}

// ParseOptionalID parses s when it is non-nil.
func ParseOptionalID(field string, s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, domain.ErrValidation("%s must be a UUID", field)
	}
	return &id, nil
}

// ParseIDs parses a list of UUID strings.
func ParseIDs(field string, ss []string) ([]uuid.UUID, error) {
	if ss == nil {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(ss))
	for _, s := range ss {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, domain.ErrValidation("%s must contain UUIDs", field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IDStrings formats ids for a response body.
func IDStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
