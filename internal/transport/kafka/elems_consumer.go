package kafka

import (
	"context"
	"crypto/tls"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

// ElemConsumer is the consumer side of the elems topic group (spec §6's
// kafka.elems.{group_id,topics}): it reads records carrying the JSON
// BgpElem wire shape (internal/bgpelem) off Kafka and hands each raw record
// to an apply callback, which decodes it (normally for
// Engine.ProcessElem), grounded on the teacher's
// StateConsumer (own kgo.Client, partition-assign/revoke/lost callbacks
// toggling a joined flag, DisableAutoCommit + explicit offset commit).
type ElemConsumer struct {
	client *kgo.Client
	logger *zap.Logger
	joined atomic.Bool
}

func NewElemConsumer(brokers []string, groupID string, topics []string, clientID string,
	fetchMaxBytes int32, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*ElemConsumer, error) {
	ec := &ElemConsumer{logger: logger}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ClientID(clientID),
		kgo.FetchMaxBytes(fetchMaxBytes),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			ec.joined.Store(true)
			logger.Info("elems consumer: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, _ map[string][]int32) {
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Error("elems consumer: commit on revoke failed", zap.Error(err))
			}
			ec.joined.Store(false)
			logger.Info("elems consumer: partitions revoked")
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			ec.joined.Store(false)
			logger.Info("elems consumer: partitions lost")
		}),
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

	ec.client = client
	return ec, nil
}

// Run polls fetches and calls apply for every record in order, one batch at
// a time, committing offsets after apply returns. apply never aborting
// (matching the engine's own never-abort-on-malformed-input contract) keeps
// this loop from stalling on a single corrupt record.
func (ec *ElemConsumer) Run(ctx context.Context, apply func(*kgo.Record) error) {
	for {
		fetches := ec.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				ec.logger.Error("elems consumer: fetch error",
					zap.String("topic", e.Topic),
					zap.Int32("partition", e.Partition),
					zap.Error(e.Err),
				)
			}
		}

		fetches.EachRecord(func(r *kgo.Record) {
			if err := apply(r); err != nil {
				ec.logger.Error("elems consumer: apply failed",
					zap.String("topic", r.Topic),
					zap.Error(err),
				)
			}
			ec.client.MarkCommitRecords(r)
		})

		commitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ec.client.CommitMarkedOffsets(commitCtx); err != nil {
			ec.logger.Error("elems consumer: commit offsets failed", zap.Error(err))
		}
		cancel()
	}
}

func (ec *ElemConsumer) IsJoined() bool {
	return ec.joined.Load()
}

func (ec *ElemConsumer) Close() {
	ec.client.Close()
}
