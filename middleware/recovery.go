package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"docparser/dto"
)

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				Logger(r.Context()).Error("Panic recovered", zap.Any("error", err))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(dto.ErrorResponse{
					Error:   "Internal server error",
					TraceID: GetTraceID(r.Context()),
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
