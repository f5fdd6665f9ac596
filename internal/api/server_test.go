package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homiewrecker/hawkeye/internal/history"
	"github.com/homiewrecker/hawkeye/internal/scout"
	"github.com/homiewrecker/hawkeye/internal/storage"
	"github.com/homiewrecker/hawkeye/internal/torn"
	"github.com/homiewrecker/hawkeye/internal/watch"
)

func upstreamHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "bazaar.php"):
			w.Write([]byte(`<html><span>$2,000</span></html>`))
		case r.URL.Query().Get("selections") == "attacks":
			w.Write([]byte(`{"attacks":{}}`))
		default:
			w.Write([]byte(`{"level":10,"donator":0,"last_action":{"status":"Offline","relative":"1 hour ago"},"status":{"state":"Okay"}}`))
		}
	})
}

func newTestRouter(t *testing.T, key string) chi.Router {
	t.Helper()
	srv := httptest.NewServer(upstreamHandler())
	t.Cleanup(srv.Close)

	st, err := storage.New(":memory:", 1000)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	client := torn.NewClient(srv.URL, srv.URL, key, 5*time.Second, torn.ClientConfig{
		MaxRetries:     1,
		RetryDelayBase: time.Millisecond,
	})
	ledger := history.New(st, client, 60, 6*time.Hour)
	watchlist := watch.New(st)
	engine := scout.NewEngine(st, client, ledger, watchlist, scout.Config{
		HalfLifeDays:       21,
		MinPersonalSamples: 2,
		JuicyThreshold:     70,
		MaybeThreshold:     40,
		EnableStatus:       true,
		EnableBazaar:       true,
		ProfileTTL:         10 * time.Minute,
		BazaarTTL:          4 * time.Hour,
		BazaarMinPrice:     1000,
		BazaarMaxPrice:     250_000_000,
		BazaarTopN:         20,
	})

	h := &Handler{Engine: engine, History: ledger, Watch: watchlist}
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, "test-key")
	rec := doRequest(t, r, http.MethodGet, "/api/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestScoreTargetEndpoint(t *testing.T) {
	r := newTestRouter(t, "test-key")
	rec := doRequest(t, r, http.MethodGet, "/api/targets/5/score", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp scoreResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ok {
		t.Error("response not ok")
	}
	if resp.Result.Verdict.TargetID != "5" {
		t.Errorf("target = %s", resp.Result.Verdict.TargetID)
	}
	if resp.Result.Verdict.Score < 0 || resp.Result.Verdict.Score > 100 {
		t.Errorf("score %d out of range", resp.Result.Verdict.Score)
	}
}

func TestScoreTarget_MissingKey(t *testing.T) {
	r := newTestRouter(t, "")
	rec := doRequest(t, r, http.MethodGet, "/api/targets/5/score", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "missing_api_key" {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestScoreRosterEndpoint(t *testing.T) {
	r := newTestRouter(t, "test-key")
	rec := doRequest(t, r, http.MethodPost, "/api/targets/score", rosterRequest{TargetIDs: []string{"5", "6"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp rosterResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("got %d results, want 2", len(resp.Results))
	}
}

func TestScoreRoster_EmptyBody(t *testing.T) {
	r := newTestRouter(t, "test-key")
	rec := doRequest(t, r, http.MethodPost, "/api/targets/score", rosterRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWatchToggleEndpoint(t *testing.T) {
	r := newTestRouter(t, "test-key")

	rec := doRequest(t, r, http.MethodPost, "/api/targets/5/watch", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp watchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Watched {
		t.Error("first toggle should watch")
	}

	rec = doRequest(t, r, http.MethodGet, "/api/watchlist", nil)
	var wl watchlistResponse
	if err := json.NewDecoder(rec.Body).Decode(&wl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(wl.TargetIDs) != 1 || wl.TargetIDs[0] != "5" {
		t.Errorf("watchlist = %v", wl.TargetIDs)
	}

	rec = doRequest(t, r, http.MethodPost, "/api/targets/5/watch", nil)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Watched {
		t.Error("second toggle should unwatch")
	}
}

func TestHistoryRefreshEndpoint(t *testing.T) {
	r := newTestRouter(t, "test-key")
	rec := doRequest(t, r, http.MethodPost, "/api/history/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp refreshResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ok {
		t.Error("response not ok")
	}
}

func TestHistoryRefresh_MissingKey(t *testing.T) {
	r := newTestRouter(t, "")
	rec := doRequest(t, r, http.MethodPost, "/api/history/refresh", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestPrefsRoundTrip(t *testing.T) {
	r := newTestRouter(t, "test-key")

	rec := doRequest(t, r, http.MethodGet, "/api/prefs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp prefsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Prefs.HalfLifeDays != 21 {
		t.Errorf("half-life = %d", resp.Prefs.HalfLifeDays)
	}

	updated := resp.Prefs
	updated.ChainMode = true
	updated.JuicyThreshold = 80
	rec = doRequest(t, r, http.MethodPut, "/api/prefs", updated)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, r, http.MethodGet, "/api/prefs", nil)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Prefs.ChainMode || resp.Prefs.JuicyThreshold != 80 {
		t.Errorf("prefs not applied: %+v", resp.Prefs)
	}
}

func TestPrefsPut_Invalid(t *testing.T) {
	r := newTestRouter(t, "test-key")
	bad := scout.Config{HalfLifeDays: 1}
	rec := doRequest(t, r, http.MethodPut, "/api/prefs", bad)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}
