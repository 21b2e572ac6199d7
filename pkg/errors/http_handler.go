package errors

import (
	"encoding/json"
	"net/http"
)

// WriteError writes the stable code and message of err. Non-AppErrors become INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, err error) error {
	appErr := AsAppError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode())
	return json.NewEncoder(w).Encode(appErr.Response())
}
