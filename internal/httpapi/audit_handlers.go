package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"arteng.org/internal/audit"
	"arteng.org/internal/auth"
	"arteng.org/internal/identity"
)

// DefaultCleanupDays is used when a cleanup request names no retention.
const DefaultCleanupDays = 90

func pageResult(p audit.Page, auditMsg string) result {
	return result{
		data:       p.Records,
		pagination: paginationOf(p),
		audit:      auditMsg,
		action:     audit.Export,
	}
}

func (a *API) listAuditLogs() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "list audit logs", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		rows := a.trail.ListAll(ctx)
		return result{
			data:   rows,
			audit:  fmt.Sprintf("Admin %s (%s) listed all audit logs (%d records)", p.Email, p.UserID, len(rows)),
			action: audit.Export,
		}, nil
	})
}

func (a *API) paginatedAuditLogs() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "query audit logs", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		page := a.trail.Query(ctx, audit.ParseFilter(r.URL.Query()))
		return pageResult(page, fmt.Sprintf("Admin %s (%s) queried audit logs (page %d, %d total)",
			p.Email, p.UserID, page.Page, page.Total)), nil
	})
}

func (a *API) userAuditLogs() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "query audit logs by user", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		userID := strings.TrimSpace(chi.URLParam(r, "userId"))
		if userID == "" {
			return result{}, validationError("userId is required")
		}
		page := a.trail.ForAccount(ctx, userID, audit.ParseFilter(r.URL.Query()))
		return pageResult(page, fmt.Sprintf("Admin %s (%s) viewed audit logs of %s (%d total)",
			p.Email, p.UserID, userID, page.Total)), nil
	})
}

func (a *API) searchAuditLogs() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "search audit logs", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		q := r.URL.Query()
		term := strings.TrimSpace(q.Get("q"))
		if term == "" {
			term = strings.TrimSpace(q.Get("searchTerm"))
		}
		if term == "" {
			return result{}, validationError("Search term is required")
		}
		page := a.trail.Search(ctx, term, audit.ParseFilter(q))
		return pageResult(page, fmt.Sprintf("Admin %s (%s) searched audit logs for %q (%d matches)",
			p.Email, p.UserID, term, page.Total)), nil
	})
}

func (a *API) dateRangeAuditLogs() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "query audit logs by date range", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		q := r.URL.Query()
		rawFrom, rawTo := q.Get("dateFrom"), q.Get("dateTo")
		if rawFrom == "" || rawTo == "" {
			return result{}, validationError("Both dateFrom and dateTo are required")
		}
		from, ok := audit.ParseTime(rawFrom)
		if !ok {
			return result{}, validationError("dateFrom is not a valid date")
		}
		to, ok := audit.ParseTime(rawTo)
		if !ok {
			return result{}, validationError("dateTo is not a valid date")
		}
		page := a.trail.DateRange(ctx, from, to, audit.ParseFilter(q))
		return pageResult(page, fmt.Sprintf("Admin %s (%s) viewed audit logs from %s to %s (%d total)",
			p.Email, p.UserID, rawFrom, rawTo, page.Total)), nil
	})
}

func (a *API) actionTypeAuditLogs() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "query audit logs by action type", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		q := r.URL.Query()
		raw := q["actionTypes"]
		if len(raw) == 0 || strings.TrimSpace(strings.Join(raw, "")) == "" {
			return result{}, validationError("actionTypes is required")
		}
		types := audit.ParseActionTypes(raw)
		if len(types) == 0 {
			return result{}, invalidInput("actionTypes contains no known action type")
		}
		page := a.trail.ByActionTypes(ctx, types, audit.ParseFilter(q))
		return pageResult(page, fmt.Sprintf("Admin %s (%s) viewed audit logs by action type %v (%d total)",
			p.Email, p.UserID, types, page.Total)), nil
	})
}

func (a *API) recentAuditLogs() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "list recent audit logs", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		n := audit.DefaultRecent
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			n = v
		}
		rows := a.trail.Recent(ctx, n)
		return result{
			data:   rows,
			audit:  fmt.Sprintf("Admin %s (%s) viewed %d recent audit logs", p.Email, p.UserID, len(rows)),
			action: audit.Export,
		}, nil
	})
}

func (a *API) auditStatistics() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "compute audit statistics", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		f := audit.ParseFilter(r.URL.Query())
		stats, err := a.trail.Statistics(ctx, f.DateFrom, f.DateTo)
		if err != nil {
			return result{}, err
		}
		return result{
			data:   stats,
			audit:  fmt.Sprintf("Admin %s (%s) viewed audit statistics (%d records)", p.Email, p.UserID, stats.Total),
			action: audit.Export,
		}, nil
	})
}

func (a *API) cleanupAuditLogs() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "clean up audit logs", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		days := DefaultCleanupDays
		if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return result{}, invalidInput("days must be an integer")
			}
			days = n
		}
		res, err := a.trail.PurgeOlderThan(ctx, days)
		if err != nil {
			return result{}, err
		}
		return result{
			data:    res,
			message: fmt.Sprintf("Deleted %d audit log records older than %d days", res.DeletedCount, res.Days),
			audit: fmt.Sprintf("Admin %s (%s) cleaned up audit logs older than %d days (%d deleted)",
				p.Email, p.UserID, res.Days, res.DeletedCount),
			action: audit.Delete,
		}, nil
	})
}
