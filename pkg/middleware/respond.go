package middleware

import (
	"net/http"

	apperrors "masterbook/pkg/errors"
)

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func reject(w http.ResponseWriter, err *apperrors.AppError) {
	_ = apperrors.WriteError(w, err)
}
