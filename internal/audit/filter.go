package audit

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filter selects records. All set criteria are ANDed; SearchTerm matches the
// message or the account.
type Filter struct {
	Limit       int
	Skip        int
	Sort        SortOrder
	DateFrom    *time.Time
	DateTo      *time.Time
	ActionTypes []ActionType
	// Account is a case-insensitive substring match.
	Account string
	// AccountExact, when set, must equal the record's account.
	AccountExact string
	SearchTerm   string
}

// Sanitize clamps out-of-range values to their defaults.
func (f Filter) Sanitize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Sort != SortAsc {
		f.Sort = SortDesc
	}
	f.Account = strings.TrimSpace(f.Account)
	f.AccountExact = strings.TrimSpace(f.AccountExact)
	f.SearchTerm = strings.TrimSpace(f.SearchTerm)
	if len(f.ActionTypes) > 0 {
		valid := make([]ActionType, 0, len(f.ActionTypes))
		seen := make(map[ActionType]bool, len(f.ActionTypes))
		for _, a := range f.ActionTypes {
			if a.Valid() && !seen[a] {
				seen[a] = true
				valid = append(valid, a)
			}
		}
		f.ActionTypes = valid
	}
	return f
}

// Match reports whether r satisfies the filter. Stores that cannot push the
// predicate down use it directly.
func (f Filter) Match(r Record) bool {
	if f.DateFrom != nil && r.Timestamp.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && r.Timestamp.After(*f.DateTo) {
		return false
	}
	if len(f.ActionTypes) > 0 {
		ok := false
		for _, a := range f.ActionTypes {
			if a == r.ActionType {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.AccountExact != "" && r.Account != f.AccountExact {
		return false
	}
	if f.Account != "" && !containsFold(r.Account, f.Account) {
		return false
	}
	if f.SearchTerm != "" && !containsFold(r.Message, f.SearchTerm) && !containsFold(r.Account, f.SearchTerm) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// ParseFilter builds a filter from query parameters. Malformed values are
// ignored and fall back to defaults after Sanitize.
func ParseFilter(q url.Values) Filter {
	var f Filter
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("skip")); err == nil {
		f.Skip = n
	}
	if strings.EqualFold(q.Get("sort"), string(SortAsc)) {
		f.Sort = SortAsc
	}
	if t, ok := ParseTime(q.Get("dateFrom")); ok {
		f.DateFrom = &t
	}
	if t, ok := ParseTime(q.Get("dateTo")); ok {
		f.DateTo = &t
	}
	f.ActionTypes = ParseActionTypes(q["actionTypes"])
	f.Account = q.Get("account")
	f.SearchTerm = q.Get("searchTerm")
	return f.Sanitize()
}

// ParseActionTypes accepts repeated values and comma separated lists; unknown
// entries are skipped.
func ParseActionTypes(values []string) []ActionType {
	var out []ActionType
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if a, err := ParseActionType(part); err == nil {
				out = append(out, a)
			}
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 timestamps or plain dates, interpreted as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
