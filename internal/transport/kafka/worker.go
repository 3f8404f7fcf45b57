// Package kafka implements the one-background-worker-per-(identity,
// topic-group) publish side of the Kafka transport (spec §4.9, §5): a
// single goroutine owning its own kgo.Client, fed snapshots through a
// mutex+cond job slot rather than a channel; Submit blocks until the
// previous job has been picked up, so no job is dropped.
package kafka

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

type workerState int

const (
	stateIdle workerState = iota
	stateRunning
	stateShutdown
)

// Job is a single message to publish.
type Job struct {
	Topic string
	Key   []byte
	Value []byte
}

// kafkaClient is the subset of *kgo.Client Worker needs, narrowed to an
// interface so tests can substitute a fake producer instead of dialing a
// real broker.
type kafkaClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Worker is a single-producer publish loop for one (identity, topic-group)
// pair, grounded on the teacher's StateConsumer pattern: its own kgo.Client,
// atomic readiness flag, and a Run loop driven until Shutdown. Unlike the
// teacher's consumer, Worker is a producer, so there are no partition
// assign/revoke callbacks to mirror — readiness here tracks whether the
// last publish attempt succeeded.
type Worker struct {
	identity  string
	client    kafkaClient
	logger    *zap.Logger
	connected atomic.Bool

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu    sync.Mutex
	cond  *sync.Cond
	state workerState
	job   *Job
}

func NewWorker(identity string, brokers []string, clientID string, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*Worker, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return newWorker(identity, client, logger), nil
}

func newWorker(identity string, client kafkaClient, logger *zap.Logger) *Worker {
	w := &Worker{
		identity:       identity,
		client:         client,
		logger:         logger,
		state:          stateIdle,
		initialBackoff: 10 * time.Second,
		maxBackoff:     180 * time.Second,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Submit hands job to the worker's single in-flight slot, blocking until
// the previous job (if any) has been picked up. It is a no-op once the
// worker has been asked to shut down.
func (w *Worker) Submit(job *Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.job != nil && w.state != stateShutdown {
		w.cond.Wait()
	}
	if w.state == stateShutdown {
		return
	}
	w.job = job
	w.cond.Signal()
}

// Run drains submitted jobs, publishing each with a capped exponential
// backoff retry, until Shutdown is called and the queue drains.
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	if w.state != stateShutdown {
		w.state = stateRunning
	}
	w.mu.Unlock()

	for {
		w.mu.Lock()
		for w.job == nil && w.state != stateShutdown {
			w.cond.Wait()
		}
		if w.job == nil && w.state == stateShutdown {
			w.mu.Unlock()
			return
		}
		job := w.job
		w.job = nil
		w.cond.Signal()
		w.mu.Unlock()

		if err := w.publish(ctx, job); err != nil {
			w.logger.Error("kafka worker: publish failed after retries",
				zap.String("identity", w.identity),
				zap.String("topic", job.Topic),
				zap.Error(err),
			)
		}
	}
}

// Shutdown asks Run to return once the current job queue drains.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	w.state = stateShutdown
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *Worker) Connected() bool {
	return w.connected.Load()
}

func (w *Worker) Close() {
	w.client.Close()
}

// publish retries a single record with a 10s->180s capped exponential
// backoff, giving up after 5 attempts (spec §4.9).
func (w *Worker) publish(ctx context.Context, job *Job) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialBackoff
	b.MaxInterval = w.maxBackoff
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		rec := &kgo.Record{Topic: job.Topic, Key: job.Key, Value: job.Value}
		results := w.client.ProduceSync(ctx, rec)
		if err := results.FirstErr(); err != nil {
			w.connected.Store(false)
			return err
		}
		w.connected.Store(true)
		return nil
	}, backoff.WithMaxRetries(b, 4)) // first attempt + 4 retries = 5 attempts
}
