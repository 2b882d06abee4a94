package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/quota"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, summary *quota.Summary) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
		Quota:   summary,
	})
}
