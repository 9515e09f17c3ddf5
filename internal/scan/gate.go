package scan

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/kasir-api/internal/domain"
)

// DefaultCooldown is the minimum gap between two accepted scans of the same code.
const DefaultCooldown = 1500 * time.Millisecond

// Kind classifies the outcome of a scan.
type Kind int

const (
	// Suppressed scans were ignored by the gate and produced no side effects.
	Suppressed Kind = iota
	// Matched scans resolved to a catalog product.
	Matched
	// NoMatch scans were accepted but did not resolve to a product.
	NoMatch
)

func (k Kind) String() string {
	switch k {
	case Matched:
		return "matched"
	case NoMatch:
		return "no_match"
	default:
		return "suppressed"
	}
}

// Suppression reasons.
const (
	ReasonCooldown = "cooldown"
	ReasonClosed   = "closed"
	ReasonEmpty    = "empty_code"
)

// Result reports what the gate did with a scan.
type Result struct {
	Kind    Kind            `json:"-"`
	Outcome string          `json:"outcome"`
	Code    string          `json:"code"`
	Product *domain.Product `json:"product,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

func newResult(kind Kind, code string) Result {
	return Result{Kind: kind, Outcome: kind.String(), Code: code}
}

// Acknowledger gives the operator audible or visual feedback for accepted scans.
type Acknowledger interface {
	Ack(p domain.Product)
	Reject(code string)
}

// CatalogProvider resolves products for the scanner.
type CatalogProvider interface {
	LookupByBarcode(ctx context.Context, code string) (domain.Product, bool, error)
	LookupByID(ctx context.Context, id string) (domain.Product, bool, error)
}

// Match returns the first product whose barcode equals code exactly.
func Match(code string, products []domain.Product) (domain.Product, bool) {
	if code == "" {
		return domain.Product{}, false
	}
	for _, p := range products {
		if p.Barcode == code {
			return p, true
		}
	}
	return domain.Product{}, false
}

// Gate matches scanned codes against a catalog and suppresses repeat detections
// of the same code inside the cooldown window. The session stays open after
// every outcome; with AutoClose a successful match closes it.
type Gate struct {
	Cooldown  time.Duration
	AutoClose bool
	Ack       Acknowledger
	// OnMatch receives every accepted match; callers typically add the product to a cart.
	OnMatch func(domain.Product)
	Now     func() time.Time

	mu       sync.Mutex
	accepted map[string]time.Time
	closed   bool
}

// OnScan resolves code against products.
func (g *Gate) OnScan(code string, products []domain.Product) Result {
	if !g.admit(code) {
		return g.suppressed(code)
	}
	p, ok := Match(code, products)
	return g.deliver(code, p, ok)
}

// OnScanCatalog resolves code through a catalog provider. Lookup errors are
// returned without consuming the cooldown, so the operator can rescan.
func (g *Gate) OnScanCatalog(ctx context.Context, code string, catalog CatalogProvider) (Result, error) {
	if !g.admit(code) {
		return g.suppressed(code), nil
	}
	p, ok, err := catalog.LookupByBarcode(ctx, code)
	if err != nil {
		g.forget(code)
		return Result{}, err
	}
	return g.deliver(code, p, ok), nil
}

// Close stops the session; later scans are suppressed.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Reopen starts a fresh session with an empty cooldown history.
func (g *Gate) Reopen() {
	g.mu.Lock()
	g.closed = false
	g.accepted = nil
	g.mu.Unlock()
}

// Closed reports whether the session has been closed.
func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// admit records code as accepted when it is outside the cooldown window.
func (g *Gate) admit(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || code == "" {
		return false
	}
	now := g.now()
	if last, ok := g.accepted[code]; ok && now.Sub(last) < g.cooldown() {
		return false
	}
	if g.accepted == nil {
		g.accepted = make(map[string]time.Time)
	}
	g.accepted[code] = now
	return true
}

func (g *Gate) forget(code string) {
	g.mu.Lock()
	delete(g.accepted, code)
	g.mu.Unlock()
}

func (g *Gate) suppressed(code string) Result {
	res := newResult(Suppressed, code)
	switch {
	case g.Closed():
		res.Reason = ReasonClosed
	case code == "":
		res.Reason = ReasonEmpty
	default:
		res.Reason = ReasonCooldown
	}
	return res
}

func (g *Gate) deliver(code string, p domain.Product, ok bool) Result {
	if !ok {
		if g.Ack != nil {
			g.Ack.Reject(code)
		}
		return newResult(NoMatch, code)
	}
	if g.Ack != nil {
		g.Ack.Ack(p)
	}
	if g.OnMatch != nil {
		g.OnMatch(p)
	}
	g.maybeClose()
	res := newResult(Matched, code)
	res.Product = &p
	return res
}

func (g *Gate) maybeClose() {
	if g.AutoClose {
		g.Close()
	}
}

func (g *Gate) cooldown() time.Duration {
	if g.Cooldown <= 0 {
		return DefaultCooldown
	}
	return g.Cooldown
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
