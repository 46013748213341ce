package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"mangatint/api/dto"
)

func handleError(w http.ResponseWriter, logger *zap.Logger, message string, err error, traceID string, status int) {
	logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
