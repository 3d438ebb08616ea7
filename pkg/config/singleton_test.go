package config

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInitialize(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	if err := Initialize(writeConfig(t, sampleConfig)); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("GetConfig() = nil after Initialize")
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q, want %q", cfg.Server.ListenAddress, "0.0.0.0:9090")
	}
}

func TestInitialize_MultipleCallsIgnored(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	first := writeConfig(t, sampleConfig)
	second := writeConfig(t, strings.Replace(sampleConfig, "0.0.0.0:9090", "127.0.0.1:1", 1))

	if err := Initialize(first); err != nil {
		t.Fatal(err)
	}
	if err := Initialize(second); err != nil {
		t.Fatal(err)
	}
	if got := GetConfig().Server.ListenAddress; got != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q, want first file kept", got)
	}
}

func TestInitialize_Error(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	if err := Initialize(writeConfig(t, "providers: {}\n")); err == nil {
		t.Error("Initialize() error = nil, want validation error")
	}
	if GetConfig() != nil {
		t.Error("GetConfig() should stay nil after a failed Initialize")
	}
}

func TestReloadConfig_NotifiesSubscribers(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	SetConfig(NewTestConfig().Build())

	var calls atomic.Int32
	var got *Config
	Subscribe(func(cfg *Config) {
		calls.Add(1)
		got = cfg
	})

	path := writeConfig(t, sampleConfig)
	if err := ReloadConfig(path); err != nil {
		t.Fatalf("ReloadConfig() error: %v", err)
	}
	if calls.Load() != 1 || got != GetConfig() {
		t.Errorf("subscriber calls = %d, got = %p, current = %p", calls.Load(), got, GetConfig())
	}

	before := GetConfig()
	if err := ReloadConfig(writeConfig(t, "cache:\n  backend: nope\n")); err == nil {
		t.Fatal("ReloadConfig() error = nil, want error")
	}
	if GetConfig() != before {
		t.Error("failed reload replaced the configuration")
	}
	if calls.Load() != 1 {
		t.Errorf("subscriber calls = %d after failed reload, want 1", calls.Load())
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	defer func() {
		if recover() == nil {
			t.Error("MustGetConfig() did not panic")
		}
	}()
	_ = MustGetConfig()
}

func TestGetConfig_Concurrent(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)
	SetConfig(NewTestConfig().Build())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = GetConfig()
		}()
		go func() {
			defer wg.Done()
			Replace(NewTestConfig().Build())
		}()
	}
	wg.Wait()
}
