package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestServeSink(t *testing.T) {
	t.Parallel()

	t.Run("serves until cancelled and runs cleanup", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ok")
		})

		var cleaned atomic.Bool
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- serveSink(ctx, ln, h, func(context.Context) error {
				cleaned.Store(true)
				return nil
			})
		}()

		resp, err := http.Get("http://" + ln.Addr().String() + "/v1/status")
		if err != nil {
			cancel()
			t.Fatalf("request failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if string(body) != "ok" {
			t.Errorf("body = %q, want ok", body)
		}

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serveSink() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("serveSink did not return after cancel")
		}
		if !cleaned.Load() {
			t.Error("expected cleanup to run")
		}
	})

	t.Run("cleanup error is returned", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		errCleanup := errors.New("cleanup failed")
		err = serveSink(ctx, ln, http.NotFoundHandler(), func(context.Context) error {
			return errCleanup
		})
		if !errors.Is(err, errCleanup) {
			t.Errorf("serveSink() error = %v, want %v", err, errCleanup)
		}
	})
}

func TestServeCmdValidation(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "serve", "--memory", "--token-ttl", "0s")
	if err == nil {
		t.Fatal("expected error for zero token ttl")
	}
}
