// SPDX-License-Identifier: Apache-2.0

package nats

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func TestWakeMessageRoundTrip(t *testing.T) {
	data, err := EncodeWake("fbo-fbk-1")
	if err != nil {
		t.Fatalf("encode wake: %v", err)
	}

	msg, err := DecodeWake(data)
	if err != nil {
		t.Fatalf("decode wake: %v", err)
	}
	if msg.InstanceID != "fbo-fbk-1" {
		t.Fatalf("expected instance id fbo-fbk-1, got %s", msg.InstanceID)
	}

	if _, err := DecodeWake([]byte("not-json")); err == nil {
		t.Fatal("expected decode error for invalid payload")
	}
}

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("set NATS_URL to run queue tests")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q, err := Connect(context.Background(), url, []string{"feedback.>"}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return q
}

func TestQueuePublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := "feedback.test." + t.Name()

	type payload struct {
		Msg string `json:"msg"`
	}
	want := payload{Msg: "hello"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu       sync.Mutex
		received *payload
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), "queue-test", subject, func(_ context.Context, _ string, d []byte) error {
		var got payload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.Msg != want.Msg {
		t.Fatalf("expected %q, got %+v", want.Msg, received)
	}
}
