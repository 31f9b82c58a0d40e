package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"arteng.org/internal/audit"
	"arteng.org/internal/identity"
	"arteng.org/internal/obs"
)

const streamHeartbeat = 25 * time.Second

// Stream tails newly written audit records as Server-Sent Events. Query
// parameters filter the tail the same way they filter paginated reads.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	p, state, err := a.gateRequest(r, identity.RoleAdmin)
	defer func() { obs.ObservePipelineState(state.String()) }()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	state = stateCompleted
	if a.hub == nil {
		a.recordOutcome(r.Context(), fmt.Sprintf("Audit log stream unavailable for %s", p.UserID), audit.Error, p.UserID)
		a.writeError(w, r, errors.New("streaming disabled"))
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	ch := a.hub.Subscribe(ctx, audit.ParseFilter(r.URL.Query()))
	a.recordOutcome(ctx, fmt.Sprintf("Admin %s (%s) opened the live audit log stream", p.Email, p.UserID), audit.Export, p.UserID)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: audit\nid: %s\ndata: %s\n\n", rec.ID, payload); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
