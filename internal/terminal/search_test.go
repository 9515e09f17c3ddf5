package terminal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/terminal"
)

func TestSearcherLastWriteWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := &terminal.Searcher[string]{
		Fetch: func(ctx context.Context, q string) ([]string, error) {
			if q == "al" {
				close(started)
				select {
				case <-ctx.Done():
				case <-release:
				}
				return []string{"stale"}, nil
			}
			return []string{q}, nil
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "al")
		done <- err
	}()
	<-started

	res, err := s.Search(context.Background(), "alp")
	require.NoError(t, err)
	require.Equal(t, []string{"alp"}, res)
	require.ErrorIs(t, <-done, terminal.ErrSuperseded)
	close(release)
}

func TestSearcherDelayCollapsesKeystrokes(t *testing.T) {
	calls := make(chan string, 4)
	s := &terminal.Searcher[string]{
		Delay: 50 * time.Millisecond,
		Fetch: func(_ context.Context, q string) ([]string, error) {
			calls <- q
			return []string{q}, nil
		},
	}

	first := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "a")
		first <- err
	}()
	time.Sleep(10 * time.Millisecond)
	res, err := s.Search(context.Background(), "ab")
	require.NoError(t, err)
	require.Equal(t, []string{"ab"}, res)
	require.ErrorIs(t, <-first, terminal.ErrSuperseded)
	require.Equal(t, "ab", <-calls)
	require.Empty(t, calls)
}

func TestSearcherReturnsCallerCancellation(t *testing.T) {
	s := &terminal.Searcher[string]{
		Delay: time.Second,
		Fetch: func(context.Context, string) ([]string, error) { return nil, nil },
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Search(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}
