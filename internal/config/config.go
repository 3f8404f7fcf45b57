package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service    ServiceConfig    `koanf:"service"`
	Kafka      KafkaConfig      `koanf:"kafka"`
	ViewSender ViewSenderConfig `koanf:"view_sender"`
	Archiver   ArchiverConfig   `koanf:"archiver"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type KafkaConfig struct {
	Brokers  []string       `koanf:"brokers"`
	ClientID string         `koanf:"client_id"`
	TLS      TLSConfig      `koanf:"tls"`
	SASL     SASLConfig     `koanf:"sasl"`
	// Namespace is the topic namespace prefix the view sender publishes
	// under (spec §6): {namespace}.{identity}.{pfxs|peers|meta}, etc.
	Namespace     string         `koanf:"namespace"`
	Elems         ConsumerConfig `koanf:"elems"`
	FetchMaxBytes int32          `koanf:"fetch_max_bytes"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// ConsumerConfig describes the collector element stream the engine
// consumes (BgpElem records, spec §4.1/§4.7).
type ConsumerConfig struct {
	GroupID string   `koanf:"group_id"`
	Topics  []string `koanf:"topics"`
}

// ViewSenderConfig is the view-sender configuration block (spec §6).
type ViewSenderConfig struct {
	// IOModule names the publish transport and is validated as "kafka" or
	// "zmq"; cmd/bgpview-sender does not read it and always publishes over
	// Kafka.
	IOModule string `koanf:"io_module"`
	// Instance is a graphite-safe identifier used as the {identity} in
	// the Kafka topic namespace; see SanitizeInstance.
	Instance string `koanf:"instance"`
	// SyncInterval is the cadence, in seconds, of full (non-diff) view
	// syncs; view.time mod SyncInterval == 0 triggers a sync frame.
	SyncInterval uint32 `koanf:"sync_interval"`
	// FilterFFV4Min/FilterFFV6Min drop full-feed peers below these
	// per-family prefix-count thresholds from publication.
	FilterFFV4Min uint32 `koanf:"filter_ff_v4_min"`
	FilterFFV6Min uint32 `koanf:"filter_ff_v6_min"`
}

// ArchiverConfig is the archiver configuration block (spec §6).
type ArchiverConfig struct {
	// Enabled gates whether the archiver runs at all; an empty
	// OutfilePattern also disables it.
	Enabled bool `koanf:"enabled"`
	// OutfilePattern supports %s (unix time) plus calendar substitutions
	// (%Y %m %d %H %M %S).
	OutfilePattern   string `koanf:"outfile_pattern"`
	RotationInterval uint32 `koanf:"rotation_interval"`
	RotationAlign    bool   `koanf:"rotation_align"`
	CompressionLevel int    `koanf:"compression_level"`
	OutputFormat     string `koanf:"output_format"`
	LatestFilename   string `koanf:"latest_filename"`
}

// SanitizeInstance makes s safe to embed as a graphite metric path
// segment: '.' becomes '_', '*' becomes '-' (spec §6).
func SanitizeInstance(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "*", "-")
	return s
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load YAML file first.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BGPVIEW_KAFKA__BROKERS → kafka.brokers
	if err := k.Load(env.Provider("BGPVIEW_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPVIEW_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bgpview-sender-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			ClientID:      "bgpview-sender",
			Namespace:     "bgpview",
			FetchMaxBytes: 52428800,
			Elems: ConsumerConfig{
				GroupID: "bgpview-sender-elems",
			},
		},
		ViewSender: ViewSenderConfig{
			IOModule:      "kafka",
			Instance:      "bgpview-sender-1",
			SyncInterval:  3600,
			FilterFFV4Min: 400000,
			FilterFFV6Min: 10000,
		},
		Archiver: ArchiverConfig{
			RotationInterval: 86400,
			CompressionLevel: 6,
			OutputFormat:     "BINARY",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Split comma-separated env strings for slice fields.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if len(cfg.Kafka.Elems.Topics) == 1 && strings.Contains(cfg.Kafka.Elems.Topics[0], ",") {
		cfg.Kafka.Elems.Topics = strings.Split(cfg.Kafka.Elems.Topics[0], ",")
	}

	cfg.ViewSender.Instance = SanitizeInstance(cfg.ViewSender.Instance)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required")
	}
	if c.Kafka.Elems.GroupID == "" {
		return fmt.Errorf("config: kafka.elems.group_id is required")
	}
	if len(c.Kafka.Elems.Topics) == 0 {
		return fmt.Errorf("config: kafka.elems.topics is required")
	}
	if c.Kafka.Namespace == "" {
		return fmt.Errorf("config: kafka.namespace is required")
	}
	if c.Kafka.FetchMaxBytes <= 0 {
		return fmt.Errorf("config: kafka.fetch_max_bytes must be > 0 (got %d)", c.Kafka.FetchMaxBytes)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}

	switch c.ViewSender.IOModule {
	case "kafka", "zmq":
	default:
		return fmt.Errorf("config: view_sender.io_module must be 'kafka' or 'zmq' (got %q)", c.ViewSender.IOModule)
	}
	if c.ViewSender.Instance == "" {
		return fmt.Errorf("config: view_sender.instance is required")
	}
	if c.ViewSender.SyncInterval == 0 {
		return fmt.Errorf("config: view_sender.sync_interval must be > 0")
	}

	if c.Archiver.Enabled || c.Archiver.OutfilePattern != "" {
		if c.Archiver.OutfilePattern == "" {
			return fmt.Errorf("config: archiver.outfile_pattern is required when the archiver is enabled")
		}
		if c.Archiver.RotationInterval == 0 {
			return fmt.Errorf("config: archiver.rotation_interval must be > 0")
		}
		if c.Archiver.CompressionLevel < 0 || c.Archiver.CompressionLevel > 9 {
			return fmt.Errorf("config: archiver.compression_level must be in 0..9 (got %d)", c.Archiver.CompressionLevel)
		}
		switch strings.ToUpper(c.Archiver.OutputFormat) {
		case "ASCII", "BINARY":
		default:
			return fmt.Errorf("config: archiver.output_format must be 'ASCII' or 'BINARY' (got %q)", c.Archiver.OutputFormat)
		}
	}

	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
