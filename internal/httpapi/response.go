package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"arteng.org/internal/audit"
)

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      *errorBody  `json:"error,omitempty"`
}

type pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
	Limit      int   `json:"limit"`
	Skip       int   `json:"skip"`
}

type errorBody struct {
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
}

func paginationOf(p audit.Page) *pagination {
	return &pagination{
		Total:      p.Total,
		Page:       p.Page,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext,
		HasPrev:    p.HasPrev,
		Limit:      p.Limit,
		Skip:       p.Skip,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as an error envelope. In production, internal
// error text and the request id are withheld.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := toAPIError(err)
	body := &errorBody{
		Message:   e.message,
		Code:      e.code,
		Timestamp: time.Now().UTC(),
	}
	if a.production {
		if e.status >= http.StatusInternalServerError {
			body.Message = "An unexpected error occurred"
		}
	} else {
		body.RequestID = RequestIDFromContext(r.Context())
	}
	writeJSON(w, e.status, envelope{Success: false, Error: body})
}
