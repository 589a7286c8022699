// spacepostctl is a one-shot command-line client for the MessageStorage
// engine.
//
// Usage:
//
//	spacepostctl store [opts] <text>
//	spacepostctl load [opts] <index>
//	spacepostctl last [opts] <n>
//	spacepostctl manifest [opts] <out-file>
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/spacepost/internal/config"
	"github.com/calvinalkan/spacepost/internal/storage"
	"github.com/calvinalkan/spacepost/pkg/fs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "store":
		return runStore(args[1:])
	case "load":
		return runLoad(args[1:])
	case "last":
		return runLast(args[1:])
	case "manifest":
		return runManifest(args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  spacepostctl store [opts] <text>")
	fmt.Fprintln(os.Stderr, "  spacepostctl load [opts] <index>")
	fmt.Fprintln(os.Stderr, "  spacepostctl last [opts] <n>")
	fmt.Fprintln(os.Stderr, "  spacepostctl manifest [opts] <out-file>")
}

// commonFlags are shared across all subcommands: where the config/storage
// directory lives.
func commonFlags(fs *flag.FlagSet) (storageDir *string, configPath *string) {
	storageDir = fs.StringP("storage-dir", "d", "", "override the storage directory")
	configPath = fs.StringP("config", "c", "", "path to an explicit config file")

	return storageDir, configPath
}

func loadEngine(storageDir, configPath string) (*storage.Engine, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}

	overrides := config.Config{StorageDir: storageDir}

	cfg, _, err := config.Load(workDir, configPath, overrides, storageDir != "", os.Environ())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	engine := storage.NewEngine(fs.NewReal(), cfg.StorageDir, cfg.EngineConfig())

	go drainEvents(engine)

	if err := engine.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	return engine, nil
}

// drainEvents renders every telemetry event as one JSON line on stderr,
// matching the ambient "no logging framework, a rendered event stream"
// convention the engine itself documents.
func drainEvents(engine *storage.Engine) {
	for ev := range engine.Events {
		renderEvent(os.Stderr, ev)
	}
}

func renderEvent(w *os.File, ev storage.Event) {
	payload := map[string]any{"kind": ev.Kind.String()}

	if ev.Index != storage.NoIndex {
		payload["index"] = ev.Index
	}

	if ev.Path != "" {
		payload["path"] = ev.Path
	}

	if ev.Kind == storage.EventStorageDirectoryWarning {
		payload["created"] = ev.Created
	}

	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(w, "{\"kind\":%q,\"marshal_error\":%q}\n", ev.Kind, err)
		return
	}

	fmt.Fprintln(w, string(data))
}

func runStore(args []string) error {
	fs := flag.NewFlagSet("store", flag.ContinueOnError)
	storageDir, configPath := commonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("store requires exactly one positional argument: <text>")
	}

	engine, err := loadEngine(*storageDir, *configPath)
	if err != nil {
		return err
	}

	idx, err := engine.Store(storage.SpacePost{Text: fs.Arg(0)})
	if err != nil {
		return fmt.Errorf("store failed: %w", err)
	}

	fmt.Println(idx)

	return nil
}

func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	storageDir, configPath := commonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("load requires exactly one positional argument: <index>")
	}

	idx, err := strconv.ParseUint(fs.Arg(0), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", fs.Arg(0), err)
	}

	engine, err := loadEngine(*storageDir, *configPath)
	if err != nil {
		return err
	}

	post, err := engine.Load(uint32(idx))
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	fmt.Println(post.Text)

	return nil
}

func runLast(args []string) error {
	fs := flag.NewFlagSet("last", flag.ContinueOnError)
	storageDir, configPath := commonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("last requires exactly one positional argument: <n>")
	}

	n, err := strconv.ParseUint(fs.Arg(0), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid n %q: %w", fs.Arg(0), err)
	}

	engine, err := loadEngine(*storageDir, *configPath)
	if err != nil {
		return err
	}

	for _, result := range engine.LoadLastN(uint32(n)) {
		if result.Err != nil {
			fmt.Printf("%d\t<error: %v>\n", result.Index, result.Err)
			continue
		}

		fmt.Printf("%d\t%s\n", result.Index, result.Post.Text)
	}

	return nil
}

// manifestEntry is one row of the manifest export.
type manifestEntry struct {
	Index uint32 `json:"index"`
	Text  string `json:"text"`
}

// runManifest exports the newest records from the recent-index history, at
// most the configured batch cap of them, to a single JSON file; records
// that fail to load are left out. Unlike a SpacePost record file, the
// manifest is a derived convenience artifact with no recovery semantics of
// its own, so it's written with natefinch/atomic: a reader must never see
// a half-written manifest, and no FILE_EXISTS-probe-and-delete dance is
// needed for a file nothing else depends on.
func runManifest(args []string) error {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	storageDir, configPath := commonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("manifest requires exactly one positional argument: <out-file>")
	}

	engine, err := loadEngine(*storageDir, *configPath)
	if err != nil {
		return err
	}

	results := engine.LoadLastN(1 << 20)

	entries := make([]manifestEntry, 0, len(results))

	for _, result := range results {
		if result.Err != nil {
			continue
		}

		entries = append(entries, manifestEntry{Index: result.Index, Text: result.Post.Text})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	if err := atomic.WriteFile(fs.Arg(0), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	return nil
}
