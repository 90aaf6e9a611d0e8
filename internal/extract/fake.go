package extract

import (
	"context"
	"sync"
	"time"
)

// Fake is a deterministic stand-in for the analysis service, used by tests
// and local development.
type Fake struct {
	Result *Metadata
	Err    error
	Delay  time.Duration

	// Merged, when non-nil, is returned from MergeTags instead of the
	// candidates unchanged.
	Merged   []string
	MergeErr error

	ReplyText string

	mu          sync.Mutex
	extractN    int
	mergeN      int
	lastRequest Request
}

func (f *Fake) Extract(ctx context.Context, req Request) (*Metadata, error) {
	f.mu.Lock()
	f.extractN++
	f.lastRequest = req
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

func (f *Fake) MergeTags(_ context.Context, _, candidates []string) ([]string, error) {
	f.mu.Lock()
	f.mergeN++
	f.mu.Unlock()
	if f.MergeErr != nil {
		return nil, f.MergeErr
	}
	if f.Merged != nil {
		return f.Merged, nil
	}
	return candidates, nil
}

func (f *Fake) Reply(_ context.Context, _ []Turn, _ UserContext) (string, error) {
	if f.ReplyText == "" {
		return "Tell me more.", nil
	}
	return f.ReplyText, nil
}

func (f *Fake) ExtractCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extractN
}

func (f *Fake) MergeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mergeN
}

func (f *Fake) LastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRequest
}
