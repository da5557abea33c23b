package snowflake

import (
	"sync"
	"testing"
	"time"
)

func TestNewGenerator_NodeRange(t *testing.T) {
	if _, err := NewGenerator(0); err != nil {
		t.Fatalf("node 0: %v", err)
	}
	if _, err := NewGenerator(MaxNode); err != nil {
		t.Fatalf("node %d: %v", MaxNode, err)
	}
	if _, err := NewGenerator(-1); err == nil {
		t.Error("expected error for negative node")
	}
	if _, err := NewGenerator(MaxNode + 1); err == nil {
		t.Error("expected error for node above range")
	}
}

func TestNext_StrictlyIncreasing(t *testing.T) {
	g, _ := NewGenerator(3)
	prev := g.Next()
	for i := 0; i < 5000; i++ {
		curr := g.Next()
		if curr <= prev {
			t.Fatalf("IDs not increasing: %d then %d", prev, curr)
		}
		prev = curr
	}
}

func TestNext_ClockGoingBackwards(t *testing.T) {
	g, _ := NewGenerator(1)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }
	first := g.Next()

	g.now = func() time.Time { return base.Add(-time.Second) }
	second := g.Next()
	if second <= first {
		t.Fatalf("ID went backwards: %d then %d", first, second)
	}
}

func TestNext_ConcurrentUnique(t *testing.T) {
	g, _ := NewGenerator(7)
	const workers, perWorker = 8, 1000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("got %d unique IDs, want %d", len(seen), workers*perWorker)
	}
}

func TestTimeAndNode(t *testing.T) {
	g, _ := NewGenerator(42)
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	g.now = func() time.Time { return at }

	id := g.Next()
	if got := Time(id); !got.Equal(at) {
		t.Errorf("Time = %v, want %v", got, at)
	}
	if got := Node(id); got != 42 {
		t.Errorf("Node = %d, want 42", got)
	}
}
