package bootstrap

import (
	"sync"
	"testing"

	"github.com/danmuck/bootctl/internal/testutil/testlog"
)

func TestTaskSetBeginIsIdempotent(t *testing.T) {
	testlog.Start(t)
	s := newTaskSet()

	if !s.Begin("core") {
		t.Fatalf("first claim refused")
	}
	if s.Begin("core") {
		t.Fatalf("duplicate claim accepted")
	}
	if s.Len() != 1 {
		t.Fatalf("duplicate insert changed set size: %d", s.Len())
	}

	s.End("core")
	s.End("core") // releasing an absent entry is a no-op
	if !s.Begin("core") {
		t.Fatalf("claim after release refused")
	}
}

func TestTaskSetOverlappingRefreshPasses(t *testing.T) {
	testlog.Start(t)
	s := newTaskSet()
	repos := []string{"core", "community"}

	var wg sync.WaitGroup
	claims := make(chan string, 16)
	for pass := 0; pass < 4; pass++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, name := range repos {
				if s.Begin(name) {
					claims <- name
				}
			}
		}()
	}
	wg.Wait()
	close(claims)

	seen := map[string]int{}
	for name := range claims {
		seen[name]++
	}
	for name, count := range seen {
		if count != 1 {
			t.Fatalf("repository %s claimed %d times across overlapping passes", name, count)
		}
	}
	if s.Len() != len(repos) {
		t.Fatalf("expected %d held claims, got %d", len(repos), s.Len())
	}
}
