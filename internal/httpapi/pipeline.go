package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"arteng.org/internal/audit"
	"arteng.org/internal/auth"
	"arteng.org/internal/identity"
	"arteng.org/internal/obs"
)

// pipelineState is where a privileged request stopped.
type pipelineState int

const (
	stateUnauthenticated pipelineState = iota
	stateAuthenticated
	stateAuthorized
	stateCompleted
	stateRejected401
	stateRejected403
	stateFailed
)

func (s pipelineState) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticated:
		return "authenticated"
	case stateAuthorized:
		return "authorized"
	case stateCompleted:
		return "completed"
	case stateRejected401:
		return "rejected_401"
	case stateRejected403:
		return "rejected_403"
	default:
		return "failed"
	}
}

// result is what an admin operation hands back to the pipeline.
type result struct {
	status     int
	data       any
	pagination *pagination
	message    string

	// audit is the outcome record written on success.
	audit  string
	action audit.ActionType
}

type operation func(ctx context.Context, p auth.Principal, r *http.Request) (result, error)

// admin wraps op so that it only runs for callers holding the required role,
// and so that every completed call leaves exactly one outcome record.
func (a *API) admin(required identity.Role, name string, op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, state, err := a.gateRequest(r, required)
		defer func() { obs.ObservePipelineState(state.String()) }()
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), p)
		res, err := runOperation(ctx, op, p, r.WithContext(ctx))
		state = stateCompleted
		if err != nil {
			obs.Logger().Warn("admin_operation_failed",
				zap.String("operation", name),
				zap.String("user_id", p.UserID),
				zap.Error(err),
			)
			a.recordOutcome(ctx, fmt.Sprintf("Failed to %s for %s: %v", name, p.UserID, err), audit.Error, p.UserID)
			a.writeError(w, r, err)
			return
		}

		msg := res.audit
		if msg == "" {
			msg = fmt.Sprintf("Admin %s (%s) performed %s", p.Name(), p.UserID, name)
		}
		a.recordOutcome(ctx, msg, res.action, p.UserID)

		status := res.status
		if status == 0 {
			status = http.StatusOK
		}
		writeJSON(w, status, envelope{
			Success:    true,
			Data:       res.data,
			Pagination: res.pagination,
			Message:    res.message,
		})
	}
}

// gateRequest authenticates and authorizes r. The returned state is the last
// one reached.
func (a *API) gateRequest(r *http.Request, required identity.Role) (auth.Principal, pipelineState, error) {
	p, err := a.gate.Authenticate(r)
	if err != nil {
		return auth.Principal{}, rejection(err, stateRejected401), err
	}
	setRequestUser(r.Context(), p.UserID)

	p, err = a.gate.Authorize(r, p, required)
	if err != nil {
		return auth.Principal{}, rejection(err, stateRejected403), err
	}
	return p, stateAuthorized, nil
}

func rejection(err error, fallback pipelineState) pipelineState {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return stateRejected401
	case errors.Is(err, auth.ErrForbidden):
		return stateRejected403
	case errors.Is(err, auth.ErrInternal):
		return stateFailed
	default:
		return fallback
	}
}

func runOperation(ctx context.Context, op operation, p auth.Principal, r *http.Request) (res result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			obs.Logger().Error("admin_operation_panic",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("%w: panic: %v", auth.ErrInternal, rec)
		}
	}()
	return op(ctx, p, r)
}

func (a *API) recordOutcome(ctx context.Context, message string, action audit.ActionType, account string) {
	if account == "" {
		account = audit.AccountSystem
	}
	_, _ = a.trail.Record(ctx, message, action, account)
}
