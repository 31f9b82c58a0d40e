// Package audit implements the append-only audit trail of privileged actions.
package audit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ActionType classifies an audit record. Numeric values are persisted.
type ActionType int

const (
	Create ActionType = iota
	Login
	System
	Delete
	Update
	Activate
	Deactivate
	Export
	Error
	SignUp
)

var actionNames = [...]string{
	Create:     "Create",
	Login:      "Login",
	System:     "System",
	Delete:     "Delete",
	Update:     "Update",
	Activate:   "Activate",
	Deactivate: "Deactivate",
	Export:     "Export",
	Error:      "Error",
	SignUp:     "SignUp",
}

// ActionTypes lists every action type in numeric order.
func ActionTypes() []ActionType {
	out := make([]ActionType, len(actionNames))
	for i := range actionNames {
		out[i] = ActionType(i)
	}
	return out
}

func (a ActionType) Valid() bool { return a >= Create && a <= SignUp }

func (a ActionType) String() string {
	if !a.Valid() {
		return "ActionType(" + strconv.Itoa(int(a)) + ")"
	}
	return actionNames[a]
}

// ParseActionType accepts a name (case-insensitive) or its numeric value.
func ParseActionType(s string) (ActionType, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if a := ActionType(n); a.Valid() {
			return a, nil
		}
		return 0, fmt.Errorf("unknown action type %q", s)
	}
	for i, name := range actionNames {
		if strings.EqualFold(name, s) {
			return ActionType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action type %q", s)
}

func (a ActionType) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid action type %d", int(a))
	}
	return []byte(a.String()), nil
}

func (a *ActionType) UnmarshalText(b []byte) error {
	v, err := ParseActionType(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Sentinel accounts used when no authenticated actor is available.
const (
	AccountSystem    = "SYSTEM"
	AccountAnonymous = "ANONYMOUS"
	AccountAdmin     = "ADMIN"
)

// Record is one immutable audit entry.
type Record struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Message    string     `json:"message"`
	ActionType ActionType `json:"actionType"`
	Account    string     `json:"account"`
}

// Page is one window of a filtered query.
type Page struct {
	Records    []Record `json:"records"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	HasNext    bool     `json:"hasNext"`
	HasPrev    bool     `json:"hasPrev"`
	Limit      int      `json:"limit"`
	Skip       int      `json:"skip"`
}

func newPage(records []Record, total int64, f Filter) Page {
	if records == nil {
		records = []Record{}
	}
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(f.Limit) - 1) / int64(f.Limit))
	}
	page := f.Skip/f.Limit + 1
	return Page{
		Records:    records,
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
		Limit:      f.Limit,
		Skip:       f.Skip,
	}
}

// PurgeResult reports the outcome of a retention purge.
type PurgeResult struct {
	DeletedCount int64     `json:"deletedCount"`
	Cutoff       time.Time `json:"cutoff"`
	Days         int       `json:"days"`
}

type AccountCount struct {
	Account string `json:"account"`
	Count   int64  `json:"count"`
}

// Stats aggregates records over an optional window.
type Stats struct {
	Total        int64                `json:"total"`
	ByActionType map[ActionType]int64 `json:"byActionType"`
	TopAccounts  []AccountCount       `json:"topAccounts"`
	DateFrom     *time.Time           `json:"dateFrom,omitempty"`
	DateTo       *time.Time           `json:"dateTo,omitempty"`
}
