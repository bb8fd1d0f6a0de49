package auction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thenexusengine/tne_leadflow/internal/buyers"
	"github.com/thenexusengine/tne_leadflow/internal/mapping"
	"github.com/thenexusengine/tne_leadflow/internal/storage"
)

func eligibleFor(t *testing.T, id, baseURL string) storage.EligibleBuyer {
	t.Helper()
	return storage.EligibleBuyer{
		Buyer: storage.Buyer{ID: id, Name: id, APIBaseURL: baseURL},
		Config: storage.BuyerServiceConfig{
			ID:      "cfg-" + id,
			BuyerID: id,
			Mapping: mapping.Config{
				Mappings: []mapping.FieldMapping{
					{Order: 1, SourceField: "zip_code", TargetField: "zip", Required: true, IncludeInPing: true, IncludeInPost: true},
				},
			},
			Response:  mapping.ResponseMapping{BidField: "bid", StatusField: "status", ErrorField: "error"},
			TimeoutMS: 1000,
		},
		Zone: storage.Zone{ID: "zone-" + id, Priority: 10},
	}
}

func bidServer(t *testing.T, body string, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Write([]byte(body))
	}))
}

func testCollector(maxConcurrent int) *Collector {
	return NewCollector(buyers.NewCaller(buyers.NewHTTPClient(5*time.Second)), maxConcurrent)
}

func TestCollector_CollectBids(t *testing.T) {
	fast := bidServer(t, `{"bid": 10}`, 0)
	defer fast.Close()
	high := bidServer(t, `{"bid": 25.5}`, 0)
	defer high.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	eligible := []storage.EligibleBuyer{
		eligibleFor(t, "fast", fast.URL),
		eligibleFor(t, "high", high.URL),
		eligibleFor(t, "broken", broken.URL),
	}

	outcomes := testCollector(10).CollectBids(context.Background(),
		map[string]interface{}{"zip_code": "90210"}, eligible)

	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}

	// Outcomes keep eligibility order regardless of response order
	if outcomes[0].Eligible.Buyer.ID != "fast" || outcomes[1].Eligible.Buyer.ID != "high" {
		t.Errorf("Expected eligibility order preserved, got %s, %s",
			outcomes[0].Eligible.Buyer.ID, outcomes[1].Eligible.Buyer.ID)
	}

	if !outcomes[0].Valid() || outcomes[0].Result.Bid != 10 {
		t.Errorf("Expected fast buyer bid 10, got %+v", outcomes[0])
	}
	if !outcomes[1].Valid() || outcomes[1].Result.Bid != 25.5 {
		t.Errorf("Expected high buyer bid 25.5, got %+v", outcomes[1])
	}
	if outcomes[2].Valid() {
		t.Error("Expected broken buyer outcome to be invalid")
	}
	if outcomes[2].ErrKind != ErrKindStatus {
		t.Errorf("Expected status error kind, got %q", outcomes[2].ErrKind)
	}
}

func TestCollector_SlowBuyerDoesNotBlockOthers(t *testing.T) {
	slow := bidServer(t, `{"bid": 99}`, 2*time.Second)
	defer slow.Close()
	quick := bidServer(t, `{"bid": 5}`, 0)
	defer quick.Close()

	slowBuyer := eligibleFor(t, "slow", slow.URL)
	slowBuyer.Config.TimeoutMS = 100

	eligible := []storage.EligibleBuyer{slowBuyer, eligibleFor(t, "quick", quick.URL)}

	start := time.Now()
	outcomes := testCollector(10).CollectBids(context.Background(),
		map[string]interface{}{"zip_code": "90210"}, eligible)
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("Expected fan-out bounded by per-buyer timeout, took %v", elapsed)
	}
	if outcomes[0].ErrKind != ErrKindTimeout {
		t.Errorf("Expected timeout for slow buyer, got %q (err %v)", outcomes[0].ErrKind, outcomes[0].Err)
	}
	if !outcomes[1].Valid() {
		t.Errorf("Expected quick buyer to succeed, got %+v", outcomes[1])
	}
}

func TestCollector_ConcurrencyBound(t *testing.T) {
	var inFlight, peak int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		w.Write([]byte(`{"bid": 1}`))
	}))
	defer server.Close()

	var eligible []storage.EligibleBuyer
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		eligible = append(eligible, eligibleFor(t, id, server.URL))
	}

	outcomes := testCollector(2).CollectBids(context.Background(),
		map[string]interface{}{"zip_code": "90210"}, eligible)

	if len(outcomes) != 6 {
		t.Fatalf("Expected 6 outcomes, got %d", len(outcomes))
	}
	if p := atomic.LoadInt64(&peak); p > 2 {
		t.Errorf("Expected at most 2 concurrent calls, saw %d", p)
	}
}

func TestCollector_BidBounds(t *testing.T) {
	tests := []struct {
		name    string
		bid     string
		min     float64
		max     float64
		valid   bool
		errKind string
	}{
		{"within bounds", `{"bid": 20}`, 5, 50, true, ""},
		{"below minimum", `{"bid": 2}`, 5, 50, false, ErrKindBounds},
		{"above maximum", `{"bid": 75}`, 5, 50, false, ErrKindBounds},
		{"no upper bound", `{"bid": 500}`, 5, 0, true, ""},
		{"zero bid passes as decline", `{"bid": 0}`, 5, 50, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := bidServer(t, tt.bid, 0)
			defer server.Close()

			e := eligibleFor(t, "b", server.URL)
			e.Zone.MinBid = tt.min
			e.Zone.MaxBid = tt.max

			outcomes := testCollector(10).CollectBids(context.Background(),
				map[string]interface{}{"zip_code": "90210"}, []storage.EligibleBuyer{e})

			if outcomes[0].Valid() != tt.valid {
				t.Errorf("Expected valid=%v, got %+v", tt.valid, outcomes[0])
			}
			if outcomes[0].ErrKind != tt.errKind {
				t.Errorf("Expected error kind %q, got %q", tt.errKind, outcomes[0].ErrKind)
			}
		})
	}
}
