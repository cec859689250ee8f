package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("X-Key") != "secret" {
			http.Error(w, "bad headers", http.StatusBadRequest)
			return
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer srv.Close()

	var out map[string]string
	err := PostJSON(context.Background(), srv.Client(), "test", srv.URL, map[string]string{"X-Key": "secret"},
		map[string]string{"msg": "hi"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out["echo"] != "hi" {
		t.Errorf("got %v", out)
	}
}

func TestPostJSON_statusClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		var out struct{}
		err := PostJSON(context.Background(), srv.Client(), "svc", srv.URL, nil, struct{}{}, &out)
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if IsPermanent(err) != tt.permanent {
			t.Errorf("status %d: permanent = %v, want %v", tt.status, IsPermanent(err), tt.permanent)
		}
		if !strings.Contains(err.Error(), "svc error (status") {
			t.Errorf("status %d: unexpected message %q", tt.status, err)
		}
	}
}
