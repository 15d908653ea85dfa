package worldtest

import (
	"context"
	"testing"
	"time"

	world "citycore/internal/sim/world"
)

// runWorld serves w's channels until the returned stop func is called. The
// test must not touch w through the harness until stop has returned.
func runWorld(t *testing.T, w *world.World) (context.Context, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	return ctx, func() {
		cancel()
		<-done
	}
}

func waitResp(t *testing.T, ctx context.Context, ch <-chan world.JoinResponse) world.JoinResponse {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		t.Fatalf("timed out waiting for join response")
	}
	return world.JoinResponse{}
}

func waitMsg(t *testing.T, ctx context.Context, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-ctx.Done():
		t.Fatalf("timed out waiting for a message")
	}
	return nil
}
