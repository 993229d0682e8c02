package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func newHandler(timeout time.Duration) *Handler {
	return NewHandler(timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandler_ReverseOrder(t *testing.T) {
	h := newHandler(time.Second)

	var order []string
	for _, name := range []string{"store", "metrics", "http"} {
		h.OnShutdown(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.WaitContext(ctx); err != nil {
		t.Fatalf("WaitContext() error = %v", err)
	}

	if got := strings.Join(order, ","); got != "http,metrics,store" {
		t.Errorf("order = %s, want http,metrics,store", got)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done() not closed after shutdown")
	}
}

func TestHandler_HookErrorsJoined(t *testing.T) {
	h := newHandler(time.Second)
	errStore := errors.New("close failed")

	ran := false
	h.OnShutdown("store", func(context.Context) error { return errStore })
	h.OnShutdown("http", func(context.Context) error {
		ran = true
		return errors.New("drain failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.WaitContext(ctx)

	if !errors.Is(err, errStore) {
		t.Errorf("error %v should wrap store failure", err)
	}
	if !strings.Contains(err.Error(), "http: drain failed") {
		t.Errorf("error %v should name the http hook", err)
	}
	if !ran {
		t.Error("later hooks must still run after a failure")
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := newHandler(20 * time.Millisecond)

	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := h.WaitContext(ctx)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("hook deadline not applied")
	}
}

func TestHandler_ConcurrentOnShutdown(t *testing.T) {
	h := newHandler(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown("noop", func(context.Context) error { return nil })
		}()
	}
	wg.Wait()

	if len(h.hooks) != 50 {
		t.Errorf("hooks = %d, want 50", len(h.hooks))
	}
}
