package http

import (
	"net/http"
	"strconv"
	"strings"

	"masterbook/pkg/config"
	apperrors "masterbook/pkg/errors"
	"masterbook/pkg/model"
)

const (
	HeaderPartyID   = "X-Party-ID"
	HeaderPartyRole = "X-Party-Role"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ExtractActor reads the party identity set by the upstream gateway.
func ExtractActor(r *http.Request) (model.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderPartyID))
	role := model.Party(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderPartyRole))))
	if id == "" || role == "" {
		return model.Actor{}, apperrors.Unauthorized("missing party identity headers")
	}
	if !role.Valid() {
		return model.Actor{}, apperrors.InvalidInput("unknown party role: " + string(role))
	}
	return model.Actor{ID: id, Role: role}, nil
}

// ExtractDate parses a required YYYY-MM-DD query parameter.
func ExtractDate(r *http.Request, name string) (model.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return "", apperrors.InvalidInput("missing " + name + " parameter")
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return "", apperrors.InvalidInput(err.Error())
	}
	return d, nil
}

// ExtractOptionalDate returns an empty date when the parameter is absent.
func ExtractOptionalDate(r *http.Request, name string) (model.Date, error) {
	if r.URL.Query().Get(name) == "" {
		return "", nil
	}
	return ExtractDate(r, name)
}
