package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigRoundTripsThroughDisk(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	manager := NewConfigManager("aaaaaaaa")
	cfg := manager.Current()
	cfg.GlobalPort = 9999
	cfg.BootstrapAddresses = []string{"10.0.0.1:10842"}

	if err := manager.Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := NewConfigManager("aaaaaaaa").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.GlobalPort != 9999 {
		t.Fatalf("GlobalPort = %d, want 9999", reloaded.GlobalPort)
	}
	if len(reloaded.BootstrapAddresses) != 1 || reloaded.BootstrapAddresses[0] != "10.0.0.1:10842" {
		t.Fatalf("BootstrapAddresses = %v, want one entry", reloaded.BootstrapAddresses)
	}
}

func TestConfigLoadWithoutFileReturnsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	manager := NewConfigManager("bbbbbbbb")
	cfg, err := manager.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NeighbourCapacity != 8 {
		t.Fatalf("NeighbourCapacity = %d, want default 8", cfg.NeighbourCapacity)
	}
}

func TestAddBootstrapAddressDeduplicates(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	manager := NewConfigManager("cccccccc")
	manager.AddBootstrapAddress("10.0.0.1:10842")
	manager.AddBootstrapAddress("10.0.0.1:10842")

	if got := len(manager.Current().BootstrapAddresses); got != 1 {
		t.Fatalf("BootstrapAddresses has %d entries, want 1", got)
	}
}

func TestConfigPathUsesConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	manager := NewConfigManager("dddddddd")
	want := filepath.Join(home, DefaultConfigDirName, "node_dddddddd_config.json")
	if manager.Path() != want {
		t.Fatalf("Path() = %q, want %q", manager.Path(), want)
	}
	if _, err := os.Stat(filepath.Join(home, DefaultConfigDirName)); err != nil {
		t.Fatalf("config directory was not created: %v", err)
	}
}
