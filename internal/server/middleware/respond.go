package middleware

import (
	"net/http"
)

// writeFailure sends the API error envelope. code is a fixed identifier and
// is written without escaping.
func writeFailure(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"success":false,"error":"` + code + `"}`))
}
