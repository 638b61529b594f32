package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)
	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
	if NewStandardClient(nil).Client != http.DefaultClient {
		t.Error("expected nil client to default to http.DefaultClient")
	}
}

func TestGetJSON_StandardClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Write([]byte(`{"counts_per_rotation": 11840200}`))
	}))
	defer server.Close()

	var got struct {
		CountsPerRotation float64 `json:"counts_per_rotation"`
	}
	if err := GetJSON(context.Background(), NewStandardClient(server.Client()), server.URL, &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if got.CountsPerRotation != 11840200 {
		t.Errorf("counts_per_rotation = %v", got.CountsPerRotation)
	}
}

func TestGetJSON_Errors(t *testing.T) {
	mock := NewMockHTTPClient().
		AddResponse(http.StatusServiceUnavailable, "controller busy\n").
		AddResponse(http.StatusOK, "{not json").
		AddErrorResponse(errors.New("connection refused"))

	var v map[string]interface{}
	err := GetJSON(context.Background(), mock, "http://stage/encoder", &v)
	if err == nil || !strings.Contains(err.Error(), "status 503: controller busy") {
		t.Errorf("expected status error, got %v", err)
	}

	err = GetJSON(context.Background(), mock, "http://stage/encoder", &v)
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Errorf("expected decode error, got %v", err)
	}

	err = GetJSON(context.Background(), mock, "http://stage/encoder", &v)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected transport error, got %v", err)
	}

	if mock.RequestCount() != 3 {
		t.Errorf("RequestCount() = %d, want 3", mock.RequestCount())
	}
	if got := mock.Requests[0].URL.String(); got != "http://stage/encoder" {
		t.Errorf("request URL = %s", got)
	}
}

func TestMockHTTPClient_DefaultResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
