// spacepostd is a long-running front end for the MessageStorage engine: it
// reads newline-delimited JSON commands from stdin and writes
// newline-delimited JSON responses to stdout, while every engine
// telemetry event is rendered to stderr as it happens.
//
// Command shape:
//
//	{"op": "store", "text": "..."}
//	{"op": "load", "index": 3}
//	{"op": "last", "n": 10}
//
// This lets spacepostd sit behind whatever transport a deployment wants
// (a unix socket relay, a supervisor pipe, a test harness) without this
// binary knowing about any of them.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/spacepost/internal/config"
	"github.com/calvinalkan/spacepost/internal/storage"
	"github.com/calvinalkan/spacepost/pkg/fs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	storageDir := flag.StringP("storage-dir", "d", "", "override the storage directory")
	configPath := flag.StringP("config", "c", "", "path to an explicit config file")
	flag.Parse()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	cfg, _, err := config.Load(workDir, *configPath, config.Config{StorageDir: *storageDir}, *storageDir != "", os.Environ())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	engine := storage.NewEngine(fs.NewReal(), cfg.StorageDir, cfg.EngineConfig())

	go drainEvents(engine)

	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	return serve(engine, os.Stdin, os.Stdout)
}

func drainEvents(engine *storage.Engine) {
	for ev := range engine.Events {
		renderEvent(os.Stderr, ev)
	}
}

func renderEvent(w io.Writer, ev storage.Event) {
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
		fmt.Fprintf(w, "{\"marshal_error\":%q}\n", err)
		return
	}

	fmt.Fprintln(w, string(data))
}

// command is one decoded request line.
type command struct {
	Op    string `json:"op"`
	Text  string `json:"text,omitempty"`
	Index uint32 `json:"index,omitempty"`
	N     uint32 `json:"n,omitempty"`
}

// response is one encoded reply line. On success OK is true and the op's
// fields are set (Index for store; Index and Text for load; Entries for
// last); on failure only Error is set. Zero-valued fields are omitted
// from the JSON.
type response struct {
	OK      bool            `json:"ok"`
	Index   uint32          `json:"index,omitempty"`
	Text    string          `json:"text,omitempty"`
	Entries []storedEntry   `json:"entries,omitempty"`
	Error   string          `json:"error,omitempty"`
	Request json.RawMessage `json:"request,omitempty"`
}

type storedEntry struct {
	Index uint32 `json:"index"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func serve(engine *storage.Engine, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd command
		if err := json.Unmarshal(line, &cmd); err != nil {
			_ = encoder.Encode(response{OK: false, Error: fmt.Sprintf("invalid command: %v", err)})
			continue
		}

		_ = encoder.Encode(dispatch(engine, cmd))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading commands: %w", err)
	}

	return nil
}

func dispatch(engine *storage.Engine, cmd command) response {
	switch cmd.Op {
	case "store":
		idx, err := engine.Store(storage.SpacePost{Text: cmd.Text})
		if err != nil {
			return response{OK: false, Error: err.Error()}
		}

		return response{OK: true, Index: idx}

	case "load":
		post, err := engine.Load(cmd.Index)
		if err != nil {
			return response{OK: false, Error: err.Error()}
		}

		return response{OK: true, Index: cmd.Index, Text: post.Text}

	case "last":
		results := engine.LoadLastN(cmd.N)

		entries := make([]storedEntry, 0, len(results))
		for _, result := range results {
			entry := storedEntry{Index: result.Index, Text: result.Post.Text}
			if result.Err != nil {
				entry.Error = result.Err.Error()
			}

			entries = append(entries, entry)
		}

		return response{OK: true, Entries: entries}

	default:
		return response{OK: false, Error: fmt.Sprintf("unknown op: %q", cmd.Op)}
	}
}
