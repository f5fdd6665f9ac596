package history

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/homiewrecker/hawkeye/internal/models"
	"github.com/homiewrecker/hawkeye/internal/storage"
	"github.com/homiewrecker/hawkeye/internal/torn"
)

func newTestStore(t *testing.T, handler http.Handler, key string) (*Store, *storage.Storage, *int64) {
	t.Helper()
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		handler.ServeHTTP(w, r)
	}))
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
	return New(st, client, 60, 6*time.Hour), st, &hits
}

func attacksBody(targetID string, ts int64, money int64) string {
	return fmt.Sprintf(`{"attacks":{"1":{"timestamp_started":%d,"timestamp_ended":%d,"defender_id":%s,"result":"Mugged","money":%d}}}`,
		ts, ts, targetID, money)
}

func TestRefresh_FreshCacheSkipsFetch(t *testing.T) {
	h, st, hits := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"attacks":{}}`))
	}), "test-key")

	seeded := []models.AttackRecord{{Timestamp: time.Now().Add(-time.Hour), TargetID: "5", Money: 100_000}}
	if err := st.ReplaceAttacks(seeded, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := h.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if atomic.LoadInt64(hits) != 0 {
		t.Errorf("fetch count = %d, want 0 for fresh cache", *hits)
	}
	if len(got) != 1 || got[0].TargetID != "5" {
		t.Errorf("cached ledger changed: %+v", got)
	}
}

func TestRefresh_StaleCacheFetches(t *testing.T) {
	h, st, hits := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(attacksBody("9", time.Now().Unix(), 7000)))
	}), "test-key")

	if err := st.ReplaceAttacks(nil, time.Now().Add(-7*time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := h.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if atomic.LoadInt64(hits) != 1 {
		t.Errorf("fetch count = %d, want 1 past TTL", *hits)
	}
	if len(got) != 1 || got[0].TargetID != "9" {
		t.Errorf("ledger = %+v", got)
	}
}

func TestRefresh_MissingKey(t *testing.T) {
	h, _, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"attacks":{}}`))
	}), "")

	_, err := h.Refresh(context.Background(), true)
	if !errors.Is(err, torn.ErrMissingKey) {
		t.Errorf("got %v, want ErrMissingKey", err)
	}
}

func TestRefresh_ReplacesNotMerges(t *testing.T) {
	var window atomic.Int64
	h, _, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if window.Load() == 0 {
			w.Write([]byte(attacksBody("11", time.Now().Add(-40*24*time.Hour).Unix(), 3000)))
		} else {
			w.Write([]byte(attacksBody("22", time.Now().Unix(), 5000)))
		}
	}), "test-key")

	first, err := h.Refresh(context.Background(), true)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if len(first) != 1 || first[0].TargetID != "11" {
		t.Fatalf("first window: %+v", first)
	}

	window.Store(1)
	second, err := h.Refresh(context.Background(), true)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if len(second) != 1 || second[0].TargetID != "22" {
		t.Fatalf("second window: %+v", second)
	}

	cached, err := h.Cached()
	if err != nil {
		t.Fatalf("Cached: %v", err)
	}
	for _, rec := range cached {
		if rec.TargetID == "11" {
			t.Error("record from superseded window survived replacement")
		}
	}
}

func TestRefresh_FailurePreservesStaleCache(t *testing.T) {
	var fail atomic.Bool
	h, st, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(attacksBody("5", time.Now().Unix(), 9000)))
	}), "test-key")

	if _, err := h.Refresh(context.Background(), true); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	fail.Store(true)
	if _, err := h.Refresh(context.Background(), true); err == nil {
		t.Fatal("expected error from failing upstream")
	}

	cached, err := st.LoadAttacks()
	if err != nil {
		t.Fatalf("LoadAttacks: %v", err)
	}
	if len(cached) != 1 || cached[0].TargetID != "5" {
		t.Errorf("stale cache not preserved: %+v", cached)
	}
}

func TestRefresh_SortedDescending(t *testing.T) {
	now := time.Now().Unix()
	body := fmt.Sprintf(`{"attacks":{
		"1":{"timestamp_started":%d,"timestamp_ended":%d,"defender_id":1,"result":"Mugged","money":100},
		"2":{"timestamp_started":%d,"timestamp_ended":%d,"defender_id":2,"result":"Mugged","money":200},
		"3":{"timestamp_started":%d,"timestamp_ended":%d,"defender_id":3,"result":"Mugged","money":300}
	}}`, now-100, now-100, now, now, now-50, now-50)
	h, _, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}), "test-key")

	got, err := h.Refresh(context.Background(), true)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Error("ledger not sorted newest first")
		}
	}
}

func TestRefresh_SingleFlight(t *testing.T) {
	var upstreamCalls int64
	h, _, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&upstreamCalls, 1)
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"attacks":{}}`))
	}), "test-key")

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := h.Refresh(context.Background(), true); err != nil {
				t.Errorf("concurrent refresh: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if n := atomic.LoadInt64(&upstreamCalls); n != 1 {
		t.Errorf("upstream calls = %d, want 1 (overlapping refreshes must coalesce)", n)
	}
}
