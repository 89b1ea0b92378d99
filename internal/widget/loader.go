package widget

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ScriptLoader fetches the hosted checkout script. Concurrent callers share
// one in-flight fetch. A successful load is remembered; a failed one is not,
// so the next call tries again.
type ScriptLoader struct {
	url    string
	client *http.Client
	group  singleflight.Group

	mu     sync.Mutex
	loaded bool
}

func NewScriptLoader(url string, client *http.Client) *ScriptLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &ScriptLoader{url: url, client: client}
}

func (l *ScriptLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

func (l *ScriptLoader) Load(ctx context.Context) error {
	if l.Loaded() {
		return nil
	}
	ch := l.group.DoChan(l.url, func() (any, error) {
		if err := l.fetch(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.loaded = true
		l.mu.Unlock()
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *ScriptLoader) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("load checkout script: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("load checkout script: %s", resp.Status)
	}
	return nil
}
