package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRemovesExpired(t *testing.T) {
	m := NewManager(time.Millisecond)
	require.NoError(t, m.Save(context.Background(), "s1", "/posts", []byte(`{}`)))
	require.NoError(t, m.Save(context.Background(), "s2", "/posts", []byte(`{}`)))
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	removed := make(chan int, 16)
	done := make(chan struct{})
	go func() {
		Sweep(ctx, m, time.Millisecond, func(n int) {
			if n > 0 {
				removed <- n
			}
		})
		close(done)
	}()

	total := 0
	deadline := time.After(2 * time.Second)
	for total < 2 {
		select {
		case n := <-removed:
			total += n
		case <-deadline:
			t.Fatalf("swept %d sessions, want 2", total)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sweep did not stop on cancel")
	}
	assert.Equal(t, 2, total)
}

type brokenStore struct {
	*Manager
}

func (brokenStore) CleanupExpired(context.Context) (int, error) {
	return 0, errors.New("database is locked")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSweepWarnsOnFailure(t *testing.T) {
	var out syncBuffer
	prev := log.Logger
	log.Logger = zerolog.New(&out).Level(zerolog.InfoLevel)
	defer func() { log.Logger = prev }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Sweep(ctx, brokenStore{NewManager(time.Hour)}, time.Millisecond, func(int) {
			t.Error("swept callback called after a failed cleanup")
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"level":"warn"`)
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, out.String(), "database is locked")
}
