package chanutil

import (
	"context"
	"testing"
	"time"
)

func TestSendRecv(t *testing.T) {
	ch := make(chan int, 1)
	ctx := context.Background()
	if err := Send(ctx, ch, 42); err != nil {
		t.Fatal(err)
	}
	got, err := Recv(ctx, ch)
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestSend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan int)
	if err := Send(ctx, ch, 1); err != ctx.Err() {
		t.Errorf("expected context error, got %v", err)
	}
}

func TestRecv_ClosedChannel(t *testing.T) {
	ch := make(chan int)
	close(ch)
	_, err := Recv(context.Background(), ch)
	if _, ok := err.(ErrClosed); !ok {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestRecv_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ch := make(chan int)
	_, err := Recv(ctx, ch)
	if err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
