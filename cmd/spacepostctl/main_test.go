package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/spacepost/internal/storage"
	"github.com/calvinalkan/spacepost/pkg/fs"
)

func flagSetForTest() *flag.FlagSet {
	return flag.NewFlagSet("test", flag.ContinueOnError)
}

func newTestEngine(t *testing.T) *storage.Engine {
	t.Helper()

	e := storage.NewEngine(fs.NewReal(), t.TempDir(), storage.DefaultConfig())

	go func() {
		for range e.Events {
		}
	}()

	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	return e
}

func TestRun_UnknownCommandFails(t *testing.T) {
	if err := run([]string{"bogus"}); err == nil {
		t.Fatal("run() error = nil, want error for unknown command")
	}
}

func TestRun_MissingCommandFails(t *testing.T) {
	if err := run(nil); err == nil {
		t.Fatal("run() error = nil, want error for missing command")
	}
}

func TestManifestEntries_JSONRoundTripNewestFirst(t *testing.T) {
	engine := newTestEngine(t)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := engine.Store(storage.SpacePost{Text: text}); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	results := engine.LoadLastN(10)

	entries := make([]manifestEntry, 0, len(results))
	for _, result := range results {
		if result.Err != nil {
			continue
		}

		entries = append(entries, manifestEntry{Index: result.Index, Text: result.Post.Text})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(out, data, 0o640); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var got []manifestEntry
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(got) != 3 || got[0].Text != "three" || got[2].Text != "one" {
		t.Fatalf("manifest entries = %+v, want newest-first [three, two, one]", got)
	}
}

func TestCommonFlags_ParsesStorageDirAndConfig(t *testing.T) {
	fs := flagSetForTest()
	storageDir, configPath := commonFlags(fs)

	if err := fs.Parse([]string{"-d", "/tmp/store", "-c", "/tmp/cfg.json"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if *storageDir != "/tmp/store" {
		t.Fatalf("storageDir = %q, want /tmp/store", *storageDir)
	}

	if *configPath != "/tmp/cfg.json" {
		t.Fatalf("configPath = %q, want /tmp/cfg.json", *configPath)
	}
}
