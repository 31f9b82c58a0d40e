package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type envelope struct {
	Success bool `json:"success"`
	Data    []struct {
		Message    string `json:"message"`
		ActionType string `json:"actionType"`
		Account    string `json:"account"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func main() {
	base := strings.TrimRight(os.Getenv("ARTENG_SMOKE_URL"), "/")
	if base == "" {
		base = "http://localhost:8080"
	}
	token := os.Getenv("ARTENG_SMOKE_TOKEN")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client := &http.Client{Timeout: 5 * time.Second}

	for _, path := range []string{"/healthz", "/readyz"} {
		if code, _ := call(ctx, client, base+path, ""); code != http.StatusOK {
			log.Fatalf("%s: expected 200, got %d", path, code)
		}
	}

	marker := fmt.Sprintf("/api/admin/audit-logs/recent?smoke=%d", time.Now().UnixNano())
	code, env := call(ctx, client, base+marker, "")
	if code != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		log.Fatalf("unauthenticated call: expected 401 UNAUTHORIZED, got %d %+v", code, env.Error)
	}

	if token == "" {
		fmt.Println("✅ smoke test passed (set ARTENG_SMOKE_TOKEN to check the admin path)")
		return
	}

	code, env = call(ctx, client, base+"/api/admin/audit-logs/recent?limit=20", token)
	if code != http.StatusOK || !env.Success {
		log.Fatalf("admin call: expected 200, got %d %+v", code, env.Error)
	}
	for _, rec := range env.Data {
		if rec.ActionType == "Error" && rec.Account == "ANONYMOUS" && strings.Contains(rec.Message, "/api/admin/audit-logs/recent") {
			fmt.Println("✅ smoke test passed: denial was audited")
			return
		}
	}
	log.Fatalf("denied request not found among %d recent audit records", len(env.Data))
}

func call(ctx context.Context, client *http.Client, url, token string) (int, envelope) {
	var env envelope
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}
