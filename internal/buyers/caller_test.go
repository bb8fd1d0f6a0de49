package buyers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thenexusengine/tne_leadflow/internal/mapping"
	"github.com/thenexusengine/tne_leadflow/internal/storage"
)

func testEligible(baseURL string) storage.EligibleBuyer {
	return storage.EligibleBuyer{
		Buyer: storage.Buyer{
			ID:         "buyer-1",
			Name:       "Acme Leads",
			APIBaseURL: baseURL,
		},
		Config: storage.BuyerServiceConfig{
			ID:      "cfg-1",
			BuyerID: "buyer-1",
			Mapping: mapping.Config{
				Mappings: []mapping.FieldMapping{
					{Order: 1, SourceField: "zip_code", TargetField: "zip", Required: true, IncludeInPing: true, IncludeInPost: true},
					{Order: 2, SourceField: "phone", TargetField: "phone", IncludeInPost: true},
				},
			},
			Response: mapping.ResponseMapping{
				BidField:    "bid",
				StatusField: "status",
			},
			TimeoutMS: 2000,
		},
		Zone: storage.Zone{ID: "zone-1", ZipPattern: "902*", Priority: 10},
	}
}

func leadData() map[string]interface{} {
	return map[string]interface{}{
		"zip_code": "90210",
		"phone":    "5551234567",
	}
}

func TestCaller_Ping(t *testing.T) {
	var gotBody map[string]interface{}
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bid": 12.50}`))
	}))
	defer server.Close()

	caller := NewCaller(NewHTTPClient(5 * time.Second))
	res, err := caller.Ping(context.Background(), leadData(), testEligible(server.URL))
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if res.Bid != 12.50 {
		t.Errorf("Expected bid 12.50, got %f", res.Bid)
	}
	if gotPath != "/ping" {
		t.Errorf("Expected path /ping, got %s", gotPath)
	}
	if gotBody["zip"] != "90210" {
		t.Errorf("Expected zip in ping payload, got %v", gotBody)
	}
	if _, ok := gotBody["phone"]; ok {
		t.Error("Phone must not appear in the ping payload")
	}
	if res.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", res.StatusCode)
	}
	if len(res.RequestPayload) == 0 {
		t.Error("Expected request payload to be recorded")
	}
}

func TestCaller_Ping_AuthHeaders(t *testing.T) {
	tests := []struct {
		name       string
		auth       storage.AuthConfig
		wantHeader string
		wantValue  string
	}{
		{
			name:       "bearer",
			auth:       storage.AuthConfig{Type: AuthTypeBearer, Token: "tok-123"},
			wantHeader: "Authorization",
			wantValue:  "Bearer tok-123",
		},
		{
			name:       "basic",
			auth:       storage.AuthConfig{Type: AuthTypeBasic, Username: "u", Password: "p"},
			wantHeader: "Authorization",
			wantValue:  "Basic dTpw",
		},
		{
			name:       "custom header",
			auth:       storage.AuthConfig{Type: AuthTypeHeader, HeaderName: "X-Api-Key", HeaderVal: "secret"},
			wantHeader: "X-Api-Key",
			wantValue:  "secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.wantHeader)
				w.Write([]byte(`{"bid": 1}`))
			}))
			defer server.Close()

			e := testEligible(server.URL)
			e.Buyer.Auth = tt.auth

			caller := NewCaller(NewHTTPClient(5 * time.Second))
			if _, err := caller.Ping(context.Background(), leadData(), e); err != nil {
				t.Fatalf("Ping failed: %v", err)
			}
			if got != tt.wantValue {
				t.Errorf("Expected %s=%q, got %q", tt.wantHeader, tt.wantValue, got)
			}
		})
	}
}

func TestCaller_Ping_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	caller := NewCaller(NewHTTPClient(5 * time.Second))
	res, err := caller.Ping(context.Background(), leadData(), testEligible(server.URL))
	if err == nil {
		t.Fatal("Expected error for 503 response")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != 503 {
		t.Errorf("Expected status 503, got %d", statusErr.StatusCode)
	}
	if res == nil || res.StatusCode != 503 {
		t.Error("Expected result to record the failing exchange")
	}
}

func TestCaller_Ping_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{"bid": 1}`))
	}))
	defer server.Close()

	e := testEligible(server.URL)
	e.Config.TimeoutMS = 50

	caller := NewCaller(NewHTTPClient(5 * time.Second))
	_, err := caller.Ping(context.Background(), leadData(), e)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("Expected timeout classification, got %v", err)
	}
}

func TestCaller_Ping_MissingRequiredField(t *testing.T) {
	caller := NewCaller(NewHTTPClient(5 * time.Second))
	e := testEligible("http://unused.invalid")

	_, err := caller.Ping(context.Background(), map[string]interface{}{"phone": "555"}, e)
	if err == nil {
		t.Fatal("Expected error for missing required field")
	}

	var missing *mapping.MissingRequiredFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected MissingRequiredFieldError, got %T: %v", err, err)
	}
}

func TestCaller_Ping_LegacyTemplate(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Write([]byte(`{"bid": 3}`))
	}))
	defer server.Close()

	e := testEligible(server.URL)
	e.Config.PingTemplate = json.RawMessage(`{"postal": "{{zip_code}}", "source": "leadflow"}`)

	caller := NewCaller(NewHTTPClient(5 * time.Second))
	if _, err := caller.Ping(context.Background(), leadData(), e); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if gotBody["postal"] != "90210" {
		t.Errorf("Expected template-rendered postal, got %v", gotBody)
	}
	if gotBody["source"] != "leadflow" {
		t.Errorf("Expected static template field, got %v", gotBody)
	}
}

func TestCaller_Post(t *testing.T) {
	var gotBody map[string]interface{}
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Write([]byte(`{"status": "accepted"}`))
	}))
	defer server.Close()

	caller := NewCaller(NewHTTPClient(5 * time.Second))
	res, err := caller.Post(context.Background(), leadData(), testEligible(server.URL))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	if !res.Accepted {
		t.Error("Expected delivery to be accepted")
	}
	if gotPath != "/post" {
		t.Errorf("Expected path /post, got %s", gotPath)
	}
	if gotBody["phone"] != "5551234567" {
		t.Errorf("Expected full payload with phone, got %v", gotBody)
	}
}

func TestCaller_Post_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "rejected", "error": "duplicate lead"}`))
	}))
	defer server.Close()

	caller := NewCaller(NewHTTPClient(5 * time.Second))
	res, err := caller.Post(context.Background(), leadData(), testEligible(server.URL))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if res.Accepted {
		t.Error("Expected delivery to be rejected")
	}
	if res.Detail != "duplicate lead" {
		t.Errorf("Expected rejection detail, got %q", res.Detail)
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		path  string
		phase mapping.Phase
		want  string
	}{
		{"default ping path", "https://buyer.example.com", "", mapping.PhasePing, "https://buyer.example.com/ping"},
		{"default post path", "https://buyer.example.com", "", mapping.PhasePost, "https://buyer.example.com/post"},
		{"trailing slash on base", "https://buyer.example.com/", "", mapping.PhasePing, "https://buyer.example.com/ping"},
		{"custom path without slash", "https://buyer.example.com", "api/v2/bid", mapping.PhasePing, "https://buyer.example.com/api/v2/bid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buyer := storage.Buyer{APIBaseURL: tt.base}
			cfg := storage.BuyerServiceConfig{}
			if tt.phase == mapping.PhasePing {
				cfg.PingPath = tt.path
			} else {
				cfg.PostPath = tt.path
			}
			got := endpointURL(buyer, cfg, tt.phase)
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
