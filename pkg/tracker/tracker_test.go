package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()
	provider := "mapillary"

	// Test Initial State
	stats := tr.Snapshot()
	if len(stats) != 0 {
		t.Errorf("Expected empty stats, got %d", len(stats))
	}

	tr.TrackCacheHit(provider)
	tr.TrackCacheMiss(provider)
	tr.TrackAPISuccess(provider)
	tr.TrackAPIFailure(provider)
	tr.TrackRateLimited(provider)
	tr.TrackAPIZero(provider)

	stats = tr.Snapshot()
	pStats, ok := stats[provider]
	if !ok {
		t.Fatalf("Expected stats for provider %s", provider)
	}

	if pStats.CacheHits != 1 {
		t.Errorf("Expected 1 CacheHit, got %d", pStats.CacheHits)
	}
	if pStats.CacheMisses != 1 {
		t.Errorf("Expected 1 CacheMiss, got %d", pStats.CacheMisses)
	}
	if pStats.APISuccess != 1 {
		t.Errorf("Expected 1 APISuccess, got %d", pStats.APISuccess)
	}
	if pStats.APIFailures != 2 {
		t.Errorf("Expected 2 APIFailures (one rate limited), got %d", pStats.APIFailures)
	}
	if pStats.RateLimited != 1 {
		t.Errorf("Expected 1 RateLimited, got %d", pStats.RateLimited)
	}
	if pStats.APIZeroResult != 1 {
		t.Errorf("Expected 1 APIZeroResult, got %d", pStats.APIZeroResult)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := New()
	tr.TrackAPISuccess("osrm")
	tr.Reset()

	s, ok := tr.Snapshot()["osrm"]
	if !ok {
		t.Fatal("provider should survive a reset")
	}
	if s.APISuccess != 0 {
		t.Errorf("APISuccess after reset = %d, want 0", s.APISuccess)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackAPISuccess("nominatim")
		}()
	}
	wg.Wait()

	if got := tr.Snapshot()["nominatim"].APISuccess; got != 50 {
		t.Errorf("APISuccess = %d, want 50", got)
	}
}
