package recovery

import (
	"testing"

	scontext "github.com/quietridge/secscan/pkg/context"
)

func TestRecover_NoPanic(t *testing.T) {
	ctx := scontext.Background()
	func() {
		defer Recover(ctx)
	}()
}

func TestRecover_CatchesPanic(t *testing.T) {
	ctx := scontext.Background()
	done := make(chan struct{})
	func() {
		defer close(done)
		defer Recover(ctx)
		panic("boom")
	}()
	select {
	case <-done:
	default:
		t.Fatal("expected Recover to swallow the panic and let the function return")
	}
}
