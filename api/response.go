package api

import (
	"encoding/json"
	"net/http"
)

// envelope is a standard JSON response wrapper.
type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// listEnvelope wraps a list response with paging metadata. Count is the
// length of this page; Total is every record matching the filter.
type listEnvelope struct {
	Data   any `json:"data"`
	Count  int `json:"count"`
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: message})
}

// WriteList writes one page of a list response.
func WriteList(w http.ResponseWriter, items any, count, total, offset, limit int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(listEnvelope{
		Data:   items,
		Count:  count,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}
