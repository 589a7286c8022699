// spacepost-shell is an interactive REPL for the MessageStorage engine.
//
// Usage:
//
//	spacepost-shell [--storage-dir dir] [--config path]
//
// Commands:
//
//	store <text...>     Store a SpacePost
//	load <index>        Load a SpacePost by index
//	last [n]            Show the n most recently stored SpacePosts (default 10)
//	info                Show telemetry counters
//	help                Show this help
//	exit / quit / q     Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
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

	go func() {
		for ev := range engine.Events {
			fmt.Fprintf(os.Stderr, "[event] %s", ev.Kind)

			if ev.Index != storage.NoIndex {
				fmt.Fprintf(os.Stderr, " index=%d", ev.Index)
			}

			if ev.Err != nil {
				fmt.Fprintf(os.Stderr, " error=%v", ev.Err)
			}

			fmt.Fprintln(os.Stderr)
		}
	}()

	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	repl := &REPL{engine: engine, storageDir: cfg.StorageDir}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	engine     *storage.Engine
	storageDir string
	liner      *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".spacepost_shell_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("spacepost-shell (storage_dir=%s)\n", r.storageDir)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("spacepost> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "store":
			r.cmdStore(strings.TrimSpace(strings.TrimPrefix(line, parts[0])))

		case "load":
			r.cmdLoad(args)

		case "last":
			r.cmdLast(args)

		case "info":
			r.cmdInfo()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"store", "load", "last", "info", "help", "exit", "quit"}

	var matches []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			matches = append(matches, c)
		}
	}

	return matches
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  store <text...>     Store a SpacePost")
	fmt.Println("  load <index>        Load a SpacePost by index")
	fmt.Println("  last [n]            Show the n most recently stored SpacePosts (default 10)")
	fmt.Println("  info                Show telemetry counters")
	fmt.Println("  help                Show this help")
	fmt.Println("  exit / quit / q     Exit")
}

func (r *REPL) cmdStore(text string) {
	if text == "" {
		fmt.Println("usage: store <text...>")
		return
	}

	idx, err := r.engine.Store(storage.SpacePost{Text: text})
	if err != nil {
		fmt.Printf("store failed: %v\n", err)
		return
	}

	fmt.Printf("stored at index %d\n", idx)
}

func (r *REPL) cmdLoad(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: load <index>")
		return
	}

	idx, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("invalid index %q: %v\n", args[0], err)
		return
	}

	post, err := r.engine.Load(uint32(idx))
	if err != nil {
		fmt.Printf("load failed: %v\n", err)
		return
	}

	fmt.Println(post.Text)
}

func (r *REPL) cmdLast(args []string) {
	n := uint32(10)

	if len(args) == 1 {
		parsed, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			fmt.Printf("invalid n %q: %v\n", args[0], err)
			return
		}

		n = uint32(parsed)
	}

	for _, result := range r.engine.LoadLastN(n) {
		if result.Err != nil {
			fmt.Printf("%d\t<error: %v>\n", result.Index, result.Err)
			continue
		}

		fmt.Printf("%d\t%s\n", result.Index, result.Post.Text)
	}
}

func (r *REPL) cmdInfo() {
	fmt.Printf("storage_dir:        %s\n", r.storageDir)
	fmt.Printf("store_attempts:     %d\n", r.engine.Telemetry.StoreAttempts)
	fmt.Printf("load_attempts:      %d\n", r.engine.Telemetry.LoadAttempts)
	fmt.Printf("next_storage_index: %d\n", r.engine.Telemetry.NextStorageIndex)
}
