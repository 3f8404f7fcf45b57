package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			Namespace:     "bgpview",
			FetchMaxBytes: 52428800,
			Elems:         ConsumerConfig{GroupID: "g1", Topics: []string{"t1"}},
		},
		ViewSender: ViewSenderConfig{
			IOModule:      "kafka",
			Instance:      "sender-1",
			SyncInterval:  3600,
			FilterFFV4Min: 400000,
			FilterFFV6Min: 10000,
		},
		Archiver: ArchiverConfig{
			Enabled:          true,
			OutfilePattern:   "/tmp/view-%s.bin",
			RotationInterval: 86400,
			CompressionLevel: 6,
			OutputFormat:     "BINARY",
			LatestFilename:   "/tmp/latest.bin",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty brokers")
	}
}

func TestValidate_NoNamespace(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Namespace = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty kafka namespace")
	}
}

func TestValidate_NoElemsGroupID(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Elems.GroupID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty elems group_id")
	}
}

func TestValidate_NoElemsTopics(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Elems.Topics = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty elems topics")
	}
}

func TestValidate_BadIOModule(t *testing.T) {
	cfg := validConfig()
	cfg.ViewSender.IOModule = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid io_module")
	}
}

func TestValidate_NoInstance(t *testing.T) {
	cfg := validConfig()
	cfg.ViewSender.Instance = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty instance")
	}
}

func TestValidate_SyncIntervalZero(t *testing.T) {
	cfg := validConfig()
	cfg.ViewSender.SyncInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sync_interval = 0")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_ArchiverMissingOutfilePattern(t *testing.T) {
	cfg := validConfig()
	cfg.Archiver.OutfilePattern = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled archiver with empty outfile_pattern")
	}
}

func TestValidate_ArchiverRotationIntervalZero(t *testing.T) {
	cfg := validConfig()
	cfg.Archiver.RotationInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for archiver.rotation_interval = 0")
	}
}

func TestValidate_ArchiverCompressionLevelOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Archiver.CompressionLevel = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for compression_level > 9")
	}
}

func TestValidate_ArchiverBadOutputFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Archiver.OutputFormat = "XML"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid output_format")
	}
}

func TestValidate_ArchiverDisabledSkipsOutfileCheck(t *testing.T) {
	cfg := validConfig()
	cfg.Archiver.Enabled = false
	cfg.Archiver.OutfilePattern = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled archiver to skip validation, got: %v", err)
	}
}

func TestSanitizeInstance(t *testing.T) {
	cases := []struct{ in, want string }{
		{"rrc00.default", "rrc00_default"},
		{"ris*", "ris-"},
		{"plain", "plain"},
	}
	for _, c := range cases {
		if got := SanitizeInstance(c.in); got != c.want {
			t.Errorf("SanitizeInstance(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
kafka:
  brokers:
    - "localhost:9092"
  namespace: "bgpview"
  elems:
    group_id: "g1"
    topics:
      - "t1"
view_sender:
  io_module: "kafka"
  instance: "sender-1"
  sync_interval: 3600
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvOverrideInstanceIsSanitized(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_VIEW_SENDER__INSTANCE", "rrc00.default")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ViewSender.Instance != "rrc00_default" {
		t.Errorf("expected sanitized instance, got %q", cfg.ViewSender.Instance)
	}
}

func TestLoad_EnvEmptyGroupIDFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_KAFKA__ELEMS__GROUP_ID", "")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for empty elems group_id via env")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	p := writeMinimalYAML(t)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ViewSender.FilterFFV4Min != 400000 {
		t.Errorf("expected default filter_ff_v4_min 400000, got %d", cfg.ViewSender.FilterFFV4Min)
	}
	if cfg.ViewSender.FilterFFV6Min != 10000 {
		t.Errorf("expected default filter_ff_v6_min 10000, got %d", cfg.ViewSender.FilterFFV6Min)
	}
	if cfg.Archiver.OutputFormat != "BINARY" {
		t.Errorf("expected default archiver output_format BINARY, got %q", cfg.Archiver.OutputFormat)
	}
}
