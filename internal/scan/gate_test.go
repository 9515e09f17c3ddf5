package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingAck struct {
	acks    []string
	rejects []string
}

func (a *countingAck) Ack(p domain.Product) { a.acks = append(a.acks, p.ID) }
func (a *countingAck) Reject(code string)  { a.rejects = append(a.rejects, code) }

var catalog = []domain.Product{
	{ID: "p-1", Name: "Kopi", Price: decimal.NewFromInt(10), Barcode: "123"},
	{ID: "p-2", Name: "Kopi duplicate", Price: decimal.NewFromInt(11), Barcode: "123"},
	{ID: "p-3", Name: "Teh", Price: decimal.NewFromInt(5), Barcode: "ABC"},
}

func newGate() (*Gate, *fakeClock, *countingAck, *[]string) {
	clock := &fakeClock{t: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)}
	ack := &countingAck{}
	var added []string
	g := &Gate{Ack: ack, Now: clock.Now, OnMatch: func(p domain.Product) { added = append(added, p.ID) }}
	return g, clock, ack, &added
}

func TestMatchIsExactAndFirstWins(t *testing.T) {
	p, ok := Match("123", catalog)
	require.True(t, ok)
	require.Equal(t, "p-1", p.ID)

	_, ok = Match("abc", catalog)
	require.False(t, ok, "matching is case-sensitive")
	_, ok = Match("", catalog)
	require.False(t, ok)
}

func TestDebounceWindow(t *testing.T) {
	g, clock, ack, added := newGate()

	res := g.OnScan("123", catalog)
	require.Equal(t, Matched, res.Kind)
	require.Equal(t, "matched", res.Outcome)

	clock.Advance(1500*time.Millisecond - time.Millisecond)
	res = g.OnScan("123", catalog)
	require.Equal(t, Suppressed, res.Kind)
	require.Equal(t, ReasonCooldown, res.Reason)

	clock.Advance(time.Millisecond + 500*time.Millisecond)
	res = g.OnScan("123", catalog)
	require.Equal(t, Matched, res.Kind)

	require.Equal(t, []string{"p-1", "p-1"}, ack.acks)
	require.Equal(t, []string{"p-1", "p-1"}, *added)
}

func TestSuppressedScansDoNotExtendCooldown(t *testing.T) {
	g, clock, _, added := newGate()
	g.OnScan("123", catalog)
	for i := 0; i < 3; i++ {
		clock.Advance(400 * time.Millisecond)
		require.Equal(t, Suppressed, g.OnScan("123", catalog).Kind)
	}
	clock.Advance(300 * time.Millisecond)
	require.Equal(t, Matched, g.OnScan("123", catalog).Kind)
	require.Len(t, *added, 2)
}

func TestDifferentCodesAreIndependent(t *testing.T) {
	g, _, ack, _ := newGate()
	require.Equal(t, Matched, g.OnScan("123", catalog).Kind)
	require.Equal(t, Matched, g.OnScan("ABC", catalog).Kind)
	require.Equal(t, []string{"p-1", "p-3"}, ack.acks)
}

func TestNoMatchKeepsSessionOpen(t *testing.T) {
	g, _, ack, added := newGate()

	res := g.OnScan("999", catalog)
	require.Equal(t, NoMatch, res.Kind)
	require.Nil(t, res.Product)
	require.Empty(t, *added)
	require.Empty(t, ack.acks)
	require.Equal(t, []string{"999"}, ack.rejects)
	require.False(t, g.Closed())

	require.Equal(t, Matched, g.OnScan("ABC", catalog).Kind)
	require.False(t, g.Closed())
}

func TestAutoCloseAndReopen(t *testing.T) {
	g, _, _, added := newGate()
	g.AutoClose = true

	require.Equal(t, NoMatch, g.OnScan("999", catalog).Kind)
	require.False(t, g.Closed(), "no-match never closes the session")

	require.Equal(t, Matched, g.OnScan("ABC", catalog).Kind)
	require.True(t, g.Closed())

	res := g.OnScan("123", catalog)
	require.Equal(t, Suppressed, res.Kind)
	require.Equal(t, ReasonClosed, res.Reason)
	require.Len(t, *added, 1)

	g.Reopen()
	require.Equal(t, Matched, g.OnScan("123", catalog).Kind)
}

func TestCloseStopsProcessing(t *testing.T) {
	g, _, ack, _ := newGate()
	g.Close()
	res := g.OnScan("123", catalog)
	require.Equal(t, Suppressed, res.Kind)
	require.Equal(t, ReasonClosed, res.Reason)
	require.Empty(t, ack.acks)

	g.Reopen()
	require.Equal(t, ReasonEmpty, g.OnScan("", catalog).Reason)
}

type stubCatalog struct {
	err   error
	calls int
}

func (s *stubCatalog) LookupByBarcode(_ context.Context, code string) (domain.Product, bool, error) {
	s.calls++
	if s.err != nil {
		return domain.Product{}, false, s.err
	}
	p, ok := Match(code, catalog)
	return p, ok, nil
}

func (s *stubCatalog) LookupByID(_ context.Context, id string) (domain.Product, bool, error) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true, nil
		}
	}
	return domain.Product{}, false, nil
}

func TestOnScanCatalogLookupFailureAllowsRescan(t *testing.T) {
	g, _, ack, _ := newGate()
	cat := &stubCatalog{err: errors.New("backend down")}

	_, err := g.OnScanCatalog(context.Background(), "123", cat)
	require.Error(t, err)

	cat.err = nil
	res, err := g.OnScanCatalog(context.Background(), "123", cat)
	require.NoError(t, err)
	require.Equal(t, Matched, res.Kind)
	require.Equal(t, 2, cat.calls)
	require.Equal(t, []string{"p-1"}, ack.acks)
}

func TestConcurrentBurstAcceptsOnce(t *testing.T) {
	g, _, _, _ := newGate()
	var mu sync.Mutex
	matched := 0
	g.OnMatch = func(domain.Product) {
		mu.Lock()
		matched++
		mu.Unlock()
	}
	g.Ack = nil

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.OnScan("123", catalog)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, matched)
}
