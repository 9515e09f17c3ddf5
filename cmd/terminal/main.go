package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-api/internal/apiclient"
	"github.com/noah-isme/kasir-api/internal/cart"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/pricing"
	"github.com/noah-isme/kasir-api/internal/terminal"
)

// The terminal is a headless till for keyboard-wedge scanners: every input
// line is a barcode unless it starts with one of the commands in run.
func main() {
	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "console"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("component", "terminal").Logger()

	businessID := envOrDefault("TERMINAL_BUSINESS_ID", "")
	terminalID := envOrDefault("TERMINAL_ID", "")
	if businessID == "" || terminalID == "" {
		logger.Fatal().Msg("TERMINAL_BUSINESS_ID and TERMINAL_ID are required")
	}
	timeout, err := time.ParseDuration(envOrDefault("OUTBOUND_TIMEOUT", "5s"))
	if err != nil {
		logger.Fatal().Err(err).Msg("parse OUTBOUND_TIMEOUT")
	}
	cooldown, err := time.ParseDuration(envOrDefault("SCAN_COOLDOWN", "1500ms"))
	if err != nil {
		logger.Fatal().Err(err).Msg("parse SCAN_COOLDOWN")
	}
	tax, err := decimal.NewFromString(envOrDefault("TERMINAL_TAX_PERCENTAGE", "0"))
	if err != nil {
		logger.Fatal().Err(err).Msg("parse TERMINAL_TAX_PERCENTAGE")
	}

	client := apiclient.New(envOrDefault("TERMINAL_API_URL", "http://localhost:8080/api/v1"), businessID, terminalID, timeout)
	client.OperatorID = envOrDefault("TERMINAL_OPERATOR_ID", "")

	cfg := terminal.Config{
		TerminalID: terminalID,
		Backend:    client,
		Ack:        terminal.LogAcknowledger{Logger: logger},
		Cooldown:   cooldown,
		Logger:     logger,
	}
	if url := envOrDefault("REDIS_URL", ""); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		ttl, err := time.ParseDuration(envOrDefault("TERMINAL_SESSION_TTL", "12h"))
		if err != nil {
			logger.Fatal().Err(err).Msg("parse TERMINAL_SESSION_TTL")
		}
		cfg.Store = cart.SessionStore{R: rdb, BusinessID: businessID, TTL: ttl}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := terminal.NewSession(cfg)
	if err := session.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("cart_session_restore_failed")
	}
	logger.Info().Str("business_id", businessID).Str("terminal_id", terminalID).Msg("terminal ready")
	if err := run(ctx, session, tax, os.Stdin, os.Stdout, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("terminal stopped with error")
	}
}

// run reads operator input until EOF, "quit" or cancellation.
//
//	<barcode>                  scan
//	qty <product> <delta>      change a line
//	rm <product>               remove a line
//	list                       show lines and totals
//	pay <method> [tendered]    check out
//	clear                      empty the cart
func run(ctx context.Context, s *terminal.Session, tax decimal.Decimal, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			return nil
		case "list":
			printCart(out, s, tax)
		case "clear":
			s.Clear(ctx)
			fmt.Fprintln(out, "cart cleared")
		case "rm":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: rm <product>")
				continue
			}
			s.Remove(ctx, fields[1])
			printCart(out, s, tax)
		case "qty":
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: qty <product> <delta>")
				continue
			}
			delta, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Fprintf(out, "bad delta %q\n", fields[2])
				continue
			}
			if _, err := s.ChangeQuantity(ctx, fields[1], delta); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			printCart(out, s, tax)
		case "pay":
			pay(ctx, out, s, tax, fields[1:], logger)
		default:
			res, err := s.Scan(ctx, fields[0])
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			switch {
			case res.Product != nil:
				fmt.Fprintf(out, "+ %s\n", res.Product.Name)
			case res.Reason != "":
				fmt.Fprintf(out, "%s: %s\n", res.Outcome, res.Reason)
			default:
				fmt.Fprintf(out, "%s %s\n", res.Outcome, res.Code)
			}
		}
	}
	return sc.Err()
}

func pay(ctx context.Context, out io.Writer, s *terminal.Session, tax decimal.Decimal, args []string, logger zerolog.Logger) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(out, "usage: pay <method> [tendered]")
		return
	}
	in := terminal.Checkout{TaxPercentage: tax, PaymentMethod: domain.PaymentMethod(strings.ToLower(args[0]))}
	if !in.PaymentMethod.Valid() {
		fmt.Fprintf(out, "unknown payment method %q\n", args[0])
		return
	}
	if len(args) == 2 {
		tendered, err := decimal.NewFromString(args[1])
		if err != nil {
			fmt.Fprintf(out, "bad amount %q\n", args[1])
			return
		}
		in.Tendered = &tendered
	}
	receipt, err := s.Checkout(ctx, in)
	if err != nil {
		fmt.Fprintf(out, "checkout failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "sale %s total %s\n", receipt.Sale.ID, pricing.Present(receipt.Sale.TotalAmount).StringFixed(2))
	if receipt.Change != nil {
		fmt.Fprintf(out, "change %s\n", pricing.Present(*receipt.Change).StringFixed(2))
	}
	logger.Debug().Str("sale_id", receipt.Sale.ID).Msg("receipt printed")
}

func printCart(out io.Writer, s *terminal.Session, tax decimal.Decimal) {
	items := s.Items()
	if len(items) == 0 {
		fmt.Fprintln(out, "cart empty")
		return
	}
	for _, it := range items {
		fmt.Fprintf(out, "%-12s %-24s %3d x %s\n", it.ProductID, it.ProductName, it.Quantity, pricing.Present(it.UnitPrice).StringFixed(2))
	}
	totals, err := s.Totals(tax, decimal.Zero)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "total %s\n", pricing.Present(totals.Total).StringFixed(2))
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
