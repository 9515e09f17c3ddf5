package scan

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/obs"
)

// ErrTerminalRequired is returned when a server-side scan carries no terminal id.
var ErrTerminalRequired = errors.New("terminal id is required")

// Debouncer admits a code for a terminal at most once per cooldown window.
type Debouncer interface {
	Admit(ctx context.Context, terminalID, code string, cooldown time.Duration) (bool, error)
	Forget(ctx context.Context, terminalID, code string) error
}

// RedisDebouncer keeps the per-terminal cooldown in Redis so that every API
// instance suppresses the same repeat detections.
type RedisDebouncer struct {
	R      *redis.Client
	Prefix string
}

// Admit records the scan and reports whether it falls outside the cooldown.
func (d RedisDebouncer) Admit(ctx context.Context, terminalID, code string, cooldown time.Duration) (bool, error) {
	return d.R.SetNX(ctx, d.key(ctx, terminalID, code), time.Now().UnixMilli(), cooldown).Result()
}

// Forget clears the cooldown so the code can be rescanned immediately.
func (d RedisDebouncer) Forget(ctx context.Context, terminalID, code string) error {
	return d.R.Del(ctx, d.key(ctx, terminalID, code)).Err()
}

func (d RedisDebouncer) key(ctx context.Context, terminalID, code string) string {
	prefix := d.Prefix
	if prefix == "" {
		prefix = "scan:debounce:"
	}
	biz, _ := business.From(ctx)
	return business.PrefixKey(biz, prefix+terminalID+":"+code)
}

// Service resolves scans posted by terminals that decode barcodes but leave
// matching and debouncing to the server.
type Service struct {
	Catalog   CatalogProvider
	Debouncer Debouncer
	Cooldown  time.Duration
	Logger    zerolog.Logger
}

// Resolve debounces code for the terminal and matches it against the catalog.
func (s *Service) Resolve(ctx context.Context, terminalID, code string) (Result, error) {
	if s == nil || s.Catalog == nil || s.Debouncer == nil {
		return Result{}, errors.New("scan service not configured")
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return Result{}, ErrTerminalRequired
	}
	if code == "" {
		res := newResult(Suppressed, code)
		res.Reason = ReasonEmpty
		obs.CountScan(res.Outcome)
		return res, nil
	}
	cooldown := s.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	ok, err := s.Debouncer.Admit(ctx, terminalID, code, cooldown)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		res := newResult(Suppressed, code)
		res.Reason = ReasonCooldown
		obs.CountScan(res.Outcome)
		return res, nil
	}
	p, found, err := s.Catalog.LookupByBarcode(ctx, code)
	if err != nil {
		if ferr := s.Debouncer.Forget(ctx, terminalID, code); ferr != nil {
			s.Logger.Warn().Err(ferr).Str("terminal_id", terminalID).Msg("scan_forget_failed")
		}
		return Result{}, err
	}
	res := newResult(NoMatch, code)
	if found {
		res = newResult(Matched, code)
		res.Product = &p
	}
	obs.CountScan(res.Outcome)
	s.Logger.Debug().Str("terminal_id", terminalID).Str("code", code).Str("outcome", res.Outcome).Msg("scan_resolved")
	return res, nil
}
