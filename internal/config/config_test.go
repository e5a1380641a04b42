package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BRIDGE_WRITE_API_KEY", "WKEY")
	t.Setenv("BRIDGE_CHANNEL_ID", "12345")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DeviceAddress != "auto" {
		t.Errorf("DeviceAddress = %q, want auto", cfg.DeviceAddress)
	}
	if cfg.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", cfg.BaudRate)
	}
	if cfg.PushInterval != 15*time.Second || cfg.MinPushInterval != 15*time.Second {
		t.Errorf("intervals = %v/%v, want 15s/15s", cfg.PushInterval, cfg.MinPushInterval)
	}
	if cfg.CandidateCount != 4 {
		t.Errorf("CandidateCount = %d, want 4", cfg.CandidateCount)
	}
	if len(cfg.CandidateNames) != 4 || cfg.CandidateNames[0] != "Japan" {
		t.Errorf("CandidateNames = %v", cfg.CandidateNames)
	}
	if cfg.RemoteBaseURL != "https://api.thingspeak.com" {
		t.Errorf("RemoteBaseURL = %q", cfg.RemoteBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BRIDGE_DEVICE_ADDRESS", "tcp://localhost:9000")
	t.Setenv("BRIDGE_CANDIDATE_COUNT", "3")
	t.Setenv("BRIDGE_CANDIDATE_NAMES", "Red,Green,Blue")
	t.Setenv("BRIDGE_PUSH_INTERVAL", "5s")
	t.Setenv("BRIDGE_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DeviceAddress != "tcp://localhost:9000" {
		t.Errorf("DeviceAddress = %q", cfg.DeviceAddress)
	}
	if cfg.CandidateCount != 3 {
		t.Errorf("CandidateCount = %d, want 3", cfg.CandidateCount)
	}
	if cfg.PushInterval != 5*time.Second {
		t.Errorf("PushInterval = %v, want 5s", cfg.PushInterval)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
}

func TestLoadRejectsMissingWriteKey(t *testing.T) {
	t.Setenv("BRIDGE_WRITE_API_KEY", "")
	t.Setenv("BRIDGE_CHANNEL_ID", "12345")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without a write API key")
	}
}

func TestLoadRejectsZeroCandidates(t *testing.T) {
	setRequired(t)
	t.Setenv("BRIDGE_CANDIDATE_COUNT", "0")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded with zero candidates")
	}
}

func TestCandidateNameFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("BRIDGE_CANDIDATE_COUNT", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.CandidateName(2); got != "Germany" {
		t.Errorf("CandidateName(2) = %q, want Germany", got)
	}
	if got := cfg.CandidateName(6); got != "Candidate 6" {
		t.Errorf("CandidateName(6) = %q, want fallback", got)
	}
}
