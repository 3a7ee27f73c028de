package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"judgebox/internal/cli/command"
	"judgebox/internal/cli/config"
	httpclient "judgebox/internal/cli/http"
	"judgebox/internal/cli/repl"
	"judgebox/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	statePath := flag.String("state", "", "Override session state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	sessionState, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := repl.New(
		httpclient.New(cfg.BaseURL, cfg.Timeout),
		command.Registry(),
		&sessionState,
		repl.Options{
			StatePath:    cfg.StatePath,
			PrettyJSON:   cfg.PrettyJSON != nil && *cfg.PrettyJSON,
			PollInterval: cfg.PollInterval,
			WaitTimeout:  cfg.WaitTimeout,
		},
		os.Stdout,
	)

	// Arguments run as a single command; otherwise start the REPL.
	if flag.NArg() > 0 {
		if err := session.Exec(ctx, bufio.NewReader(os.Stdin), strings.Join(quoteArgs(flag.Args()), " ")); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	session.Run(ctx, os.Stdin)
}

// quoteArgs re-quotes shell-split arguments so the REPL tokenizer sees them unchanged.
func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.ContainsAny(arg, " \t\"'\\") {
			out[i] = "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
			continue
		}
		out[i] = arg
	}
	return out
}
