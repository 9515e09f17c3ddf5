package stock_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/stock"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	if c.err != nil {
		return nil, c.err
	}
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

type captureNotifier struct {
	got []stock.LowStockPayload
}

func (c *captureNotifier) NotifyLowStock(_ context.Context, p stock.LowStockPayload) error {
	c.got = append(c.got, p)
	return nil
}

func TestLow(t *testing.T) {
	require.True(t, stock.Low(5, 5))
	require.True(t, stock.Low(0, 0))
	require.False(t, stock.Low(6, 5))
	require.False(t, stock.Low(0, -1))
}

func TestAlerterEnqueuesAndWorkerProcesses(t *testing.T) {
	obs.MustRegisterDomainMetrics("kasir_test", prometheus.NewRegistry())
	before := testutil.ToFloat64(obs.StockLowTotal)

	enq := &captureEnqueuer{}
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	alerter := stock.Alerter{Client: enq, Dedup: time.Hour, Now: func() time.Time { return at }}
	product := domain.Product{ID: "p-1", Name: "Teh Botol", Price: decimal.NewFromInt(5), Quantity: 2}
	require.NoError(t, alerter.LowStock(context.Background(), "shop", product, 5))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, stock.TypeLowStock, enq.tasks[0].Type())
	require.Equal(t, before+1, testutil.ToFloat64(obs.StockLowTotal))

	var logs bytes.Buffer
	notifier := &captureNotifier{}
	proc := stock.Processor{Logger: zerolog.New(&logs), Notifier: notifier}
	require.NoError(t, proc.ProcessTask(context.Background(), enq.tasks[0]))
	require.Len(t, notifier.got, 1)
	require.Equal(t, "p-1", notifier.got[0].ProductID)
	require.Equal(t, 2, notifier.got[0].Quantity)
	require.Equal(t, at, notifier.got[0].RaisedAt)
	require.Contains(t, logs.String(), "stock_low")
}

func TestAlerterIgnoresDuplicates(t *testing.T) {
	alerter := stock.Alerter{Client: &captureEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, alerter.LowStock(context.Background(), "shop", domain.Product{ID: "p"}, 1))

	boom := errors.New("redis down")
	alerter = stock.Alerter{Client: &captureEnqueuer{err: boom}}
	require.ErrorIs(t, alerter.LowStock(context.Background(), "shop", domain.Product{ID: "p"}, 1), boom)

	require.NoError(t, stock.Alerter{}.LowStock(context.Background(), "shop", domain.Product{ID: "p"}, 1))
}

func TestProcessorSkipsRetryOnBadPayload(t *testing.T) {
	err := stock.Processor{Logger: zerolog.Nop()}.ProcessTask(context.Background(), asynq.NewTask(stock.TypeLowStock, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAlerterDeduplicatesPerProductOnRealQueue(t *testing.T) {
	obs.MustRegisterDomainMetrics("kasir_test", prometheus.NewRegistry())
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	before := testutil.ToFloat64(obs.StockLowTotal)
	alerter := stock.Alerter{Client: client, Queue: stock.DefaultQueue, Dedup: time.Hour}
	ctx := context.Background()
	for _, qty := range []int{3, 3, 2} {
		p := domain.Product{ID: "p1", Name: "Roti Tawar", Quantity: qty}
		require.NoError(t, alerter.LowStock(ctx, "shop-a", p, 5))
	}
	require.NoError(t, alerter.LowStock(ctx, "shop-b", domain.Product{ID: "p1", Quantity: 1}, 5))

	pending, err := mr.List("asynq:{" + stock.DefaultQueue + "}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 2, "one alert per business and product")
	require.Equal(t, before+2, testutil.ToFloat64(obs.StockLowTotal))
}
