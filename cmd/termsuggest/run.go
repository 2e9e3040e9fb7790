package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/remiges-tech/termsuggest"
	"github.com/remiges-tech/termsuggest/config"
	"github.com/remiges-tech/termsuggest/internal/logger"
	"github.com/remiges-tech/termsuggest/providers/disk"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	// minSearchLength is the shortest partial word accepted by the search mode.
	minSearchLength = 3
)

type mode int

const (
	modeBuild mode = iota
	modeSearch
)

// command is a parsed command line.
type command struct {
	mode       mode
	verbose    bool
	term       string
	configPath string
	limit      int
	debug      bool
}

var errUsage = errors.New("usage: termsuggest [-config file] [-limit n] [-d] build [-v] | search <term>")

func parseArgs(args []string, stderr io.Writer) (*command, error) {
	fs := flag.NewFlagSet("termsuggest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cmd := &command{}
	fs.StringVar(&cmd.configPath, "config", "", "Path to the TOML configuration file")
	fs.IntVar(&cmd.limit, "limit", 0, "Number of suggestions to return (default from config)")
	fs.BoolVar(&cmd.debug, "d", false, "Toggle debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, errUsage
	}
	switch rest[0] {
	case "build", "B":
		cmd.mode = modeBuild
		switch {
		case len(rest) == 1:
		case len(rest) == 2 && rest[1] == "-v":
			cmd.verbose = true
		default:
			return nil, errUsage
		}
	case "BV":
		if len(rest) != 1 {
			return nil, errUsage
		}
		cmd.mode = modeBuild
		cmd.verbose = true
	case "search", "S":
		if len(rest) != 2 {
			return nil, errUsage
		}
		cmd.mode = modeSearch
		cmd.term = rest[1]
		if utf8.RuneCountInString(cmd.term) < minSearchLength {
			return nil, fmt.Errorf("search term must be longer than %d characters", minSearchLength-1)
		}
	default:
		return nil, errUsage
	}
	return cmd, nil
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, err := parseArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		return exitUsage
	}

	cfg := config.DefaultConfig()
	if cmd.configPath != "" {
		if cfg, err = config.Load(cmd.configPath); err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
	}

	l := logger.NewWithWriter(stderr, "termsuggest")
	l.SetLevel(cfg.LogLevel())
	if cmd.debug {
		l.SetLevel(log.DebugLevel)
	}

	name, providerConfig := cfg.ProviderConfig()
	if dc, ok := providerConfig.(disk.Config); ok && cmd.mode == modeSearch {
		dc.ReadOnly = true
		providerConfig = dc
	}
	l.Debug("opening index", "provider", name, "namespace", cfg.Index.Namespace)

	idx, err := termsuggest.New(name, termsuggest.NewConfigWithOptions(providerConfig, cfg.Options(l)))
	if err != nil {
		l.Error("failed to open index", "err", err)
		return exitError
	}
	defer func() {
		if err := idx.Close(); err != nil {
			l.Warn("failed to close index", "err", err)
		}
	}()

	if cmd.mode == modeSearch {
		return search(ctx, idx, cmd, cfg, stdout, l)
	}
	return build(ctx, idx, cmd, cfg, l)
}

func search(ctx context.Context, idx termsuggest.Index, cmd *command, cfg *config.Config, stdout io.Writer, l *log.Logger) int {
	limit := cmd.limit
	if limit <= 0 {
		limit = cfg.Build.DefaultLimit
	}
	words, err := idx.Suggest(ctx, cmd.term, limit)
	if err != nil {
		l.Error("search failed", "term", cmd.term, "err", err)
		return exitError
	}
	for _, w := range words {
		fmt.Fprintln(stdout, w)
	}
	return exitOK
}

func build(ctx context.Context, idx termsuggest.Index, cmd *command, cfg *config.Config, l *log.Logger) int {
	sources, err := cfg.Sources()
	if err != nil {
		l.Error("failed to list corpora", "err", err)
		return exitError
	}
	if len(sources) == 0 {
		l.Error("no corpora configured")
		return exitError
	}

	reset, err := termsuggest.ResetIfStale(ctx, idx, cfg.MaxAge(), time.Now())
	if err != nil {
		l.Error("stale index check failed", "err", err)
		return exitError
	}
	if reset {
		l.Info("stale index removed", "max_age", cfg.MaxAge())
	}

	start := time.Now()
	report, err := idx.BuildBatch(ctx, sources, cmd.verbose)
	built := 0
	if report != nil {
		for _, cr := range report.Corpora {
			if !cr.Skipped {
				built++
			}
		}
	}
	if err != nil {
		l.Error("build finished with errors", "corpora", len(sources), "built", built, "elapsed", time.Since(start), "err", err)
		return exitError
	}
	l.Info("build finished", "corpora", len(sources), "built", built, "elapsed", time.Since(start))
	return exitOK
}
