package netconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFileAndGet(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "sensor.json", `{
		"time_sync": {"bind": "udp://0.0.0.0:7777", "connect": "", "kissnet": "udp://127.0.0.1:7777"},
		"sensor": {"bind": "ipc:///tmp/sensor.sock", "connect": "inproc://pubsub", "kissnet": ""}
	}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	ts, err := cfg.Get("time_sync")
	if err != nil {
		t.Fatalf("Get(time_sync): %v", err)
	}
	if ts.Bind != "udp://0.0.0.0:7777" {
		t.Fatalf("unexpected bind: %q", ts.Bind)
	}
	if ts.Kissnet != "udp://127.0.0.1:7777" {
		t.Fatalf("unexpected kissnet: %q", ts.Kissnet)
	}

	sensor, err := cfg.Get("sensor")
	if err != nil {
		t.Fatalf("Get(sensor): %v", err)
	}
	if sensor.Connect != "inproc://pubsub" {
		t.Fatalf("unexpected connect: %q", sensor.Connect)
	}
}

func TestGetUnknownSystemFails(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "empty.json", `{}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := cfg.Get("missing"); err == nil {
		t.Fatal("expected an error for an undefined system")
	}
}

func TestLoadFileRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "broken.json", `{not json`)

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadFileRejectsMissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected a read error for a missing file")
	}
}
