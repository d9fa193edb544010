package ids

import (
	"sync"
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if len(next) != 26 {
			t.Fatalf("expected 26 characters, got %d", len(next))
		}
		if prev >= next {
			t.Fatalf("expected increasing ids, %s >= %s", prev, next)
		}
		prev = next
	}
}

func TestNewConcurrentUniqueness(t *testing.T) {
	const workers, perWorker = 8, 25

	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id := New()
				lock.Lock()
				seen[id] = struct{}{}
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique ids, got %d", workers*perWorker, len(seen))
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	got, err := Time(NewAt(at))
	if err != nil {
		t.Fatalf("time failed: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("expected %s, got %s", at, got)
	}

	if _, err := Time("not-a-ulid"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
