package database

import (
	"context"
	"sync"
)

// Pinger is a dependency that can report readiness.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// CheckAll pings every dependency concurrently and returns failures by name.
func CheckAll(ctx context.Context, deps ...Pinger) map[string]error {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make(map[string]error)
	)
	for _, dep := range deps {
		if dep == nil {
			continue
		}
		wg.Add(1)
		go func(p Pinger) {
			defer wg.Done()
			if err := p.Ping(ctx); err != nil {
				mu.Lock()
				failures[p.Name()] = err
				mu.Unlock()
			}
		}(dep)
	}
	wg.Wait()
	return failures
}
