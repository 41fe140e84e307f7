// Package publish sends threshold alerts to a Kafka-compatible broker.
package publish

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
	"github.com/amaresga/simtemp/internal/record"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

const (
	connectTimeout = 10 * time.Second
	flushTimeout   = 5 * time.Second
)

// Producer is the subset of *kgo.Client the publisher uses.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

type Config struct {
	Brokers []string
	Topic   string
	// Device identifies the source in every event and is used as the record key.
	Device string
	// Cooldown suppresses repeated alerts; zero publishes every crossing.
	Cooldown time.Duration
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 || c.Topic == "" {
		return errors.New().WithMessage(ErrInvalidConfig, "brokers and topic are required")
	}
	if c.Cooldown < 0 {
		return errors.New().WithData(ErrInvalidConfig, c.Cooldown)
	}
	return nil
}

// AlertEvent is the JSON body of a published alert.
type AlertEvent struct {
	Device      string    `json:"device"`
	HostName    string    `json:"host_name"`
	Temperature float64   `json:"temperature"`
	TempMC      int32     `json:"temp_mC"`
	TimestampNs uint64    `json:"timestamp_ns"`
	Flags       uint32    `json:"flags"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher turns samples with the threshold crossed flag into AlertEvents.
type Publisher struct {
	producer Producer
	cfg      Config
	host     string
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// Connect dials the brokers and verifies the cluster answers a metadata request.
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RetryTimeout(30*time.Second),
	)
	if err != nil {
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}

	if err := checkConnection(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Alert publisher connected")

	return New(client, cfg), nil
}

func checkConnection(ctx context.Context, client *kgo.Client) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req := kmsg.NewPtrMetadataRequest()
	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return errors.New().Wrap(ErrConnectFailed, err)
	}
	if len(resp.Brokers) == 0 {
		return errors.New().WithMessage(ErrConnectFailed, "no brokers in cluster metadata")
	}

	for _, b := range resp.Brokers {
		logger.Debug().Int32("node_id", b.NodeID).Str("host", b.Host).Int32("port", b.Port).Msg("Broker")
	}

	return nil
}

// New wraps an existing producer.
func New(p Producer, cfg Config) *Publisher {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Publisher{producer: p, cfg: cfg, host: host, now: time.Now}
}

// Record publishes s if it carries the threshold crossed flag. Delivery is
// asynchronous; failures are logged.
func (p *Publisher) Record(ctx context.Context, s record.Sample) error {
	if !s.ThresholdCrossed() {
		return nil
	}

	now := p.now()
	p.mu.Lock()
	if p.cfg.Cooldown > 0 && !p.last.IsZero() && now.Sub(p.last) < p.cfg.Cooldown {
		p.mu.Unlock()
		return nil
	}
	p.last = now
	p.mu.Unlock()

	event := AlertEvent{
		Device:      p.cfg.Device,
		HostName:    p.host,
		Temperature: s.Celsius(),
		TempMC:      s.TempMC,
		TimestampNs: s.TimestampNs,
		Flags:       uint32(s.Flags),
		PublishedAt: now.UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return errors.New().Wrap(ErrEncodeFailed, err)
	}

	rec := &kgo.Record{Topic: p.cfg.Topic, Key: []byte(p.cfg.Device), Value: value}
	p.producer.Produce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			logger.Warn().Err(err).Str("topic", r.Topic).Msg("Alert delivery failed")
			return
		}
		logger.Debug().Str("topic", r.Topic).Int64("offset", r.Offset).Msg("Alert delivered")
	})

	return nil
}

// Close flushes buffered alerts and closes the producer.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := p.producer.Flush(ctx)
	p.producer.Close()
	if err != nil {
		return errors.New().Wrap(ErrFlushFailed, err)
	}

	return nil
}
