package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"log/slog"

	"github.com/justinwangx/ra-cli/agentloop"
	"github.com/justinwangx/ra-cli/openrouter"
)

var rootCmd = &cobra.Command{
	Use:   "ra [flags] [PROMPT]",
	Short: "Ra is a baseline ReAct CLI agent for OpenRouter-compatible models.",
	Long:  "Ra is a baseline ReAct CLI agent for OpenRouter-compatible models.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		setupLogger(cfg.LogLevel)

		prompt := ""
		if len(args) == 1 {
			prompt = args[0]
		}
		return run(cmd, cfg, prompt)
	},
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	registerFlags(rootCmd.Flags())
	rootCmd.MarkFlagsMutuallyExclusive("exec", "no-submit")
	rootCmd.MarkFlagsMutuallyExclusive("json", "stream-json")
}

func registerFlags(f *pflag.FlagSet) {
	f.String("model", defaultModel, "Model ID to use (OpenRouter format).")
	f.String("prompt-file", "", "Read the prompt from a file.")
	f.String("cwd", defaultCwd, "Working directory for file and shell tools.")
	f.String("api-key", "", "OpenRouter API key (overrides OPENROUTER_API_KEY).")
	f.String("base-url", defaultBaseURL, "OpenRouter API base URL.")
	f.Float64("temperature", 0, "Sampling temperature (omit to use provider default).")
	f.Int("max-steps", 0, "Maximum number of tool steps before terminating.")
	f.Int("time-limit-sec", 0, "Time limit in seconds before terminating.")
	f.String("log-dir", "", "Directory to write the JSONL log file.")
	f.String("log-path", "", "Path to write the JSONL log file (overrides --log-dir).")
	f.String("log-level", "info", "Diagnostic log level (debug, info, warn, error).")
	f.Bool("json", false, "Print the JSONL event stream to stdout after completion (suppresses plain final answer output).")
	f.Bool("stream-json", false, "Stream the JSONL event stream to stdout as events occur (suppresses plain final answer output).")
	f.Int("max-tool-output-chars", 0, "Maximum tool output characters to retain.")
	f.Bool("exec", false, "Force agent/exec mode (enable submit tool and continue until submit is called).")
	f.Bool("no-submit", false, "Force disabling the submit tool and stop on the first assistant response without tool calls.")
	f.Bool("retry-429", false, "Retry HTTP 429 responses (rate limited). Off by default.")
	f.Bool("enable-search", false, "Enable web tools (off by default): web_search (Tavily), web_open, web_find.")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.TimeOnly,
	})
	slog.SetDefault(slog.New(handler))
}

func run(cmd *cobra.Command, cfg *Config, prompt string) error {
	task, err := loadTask(cfg, prompt)
	if err != nil {
		return err
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("no API key was found: set OPENROUTER_API_KEY or pass --api-key")
	}

	cwd, err := canonicalizeCwd(cfg.Cwd)
	if err != nil {
		return err
	}

	// `ra "PROMPT"` behaves like a normal CLI by default and exits on the
	// first assistant reply; `ra --prompt-file file.txt` runs in agent mode
	// and continues until submit. --exec / --no-submit override.
	submitEnabled := cfg.PromptFile != ""
	if cfg.Exec {
		submitEnabled = true
	} else if cfg.NoSubmit {
		submitEnabled = false
	}

	var webCfg agentloop.WebConfig
	if cfg.EnableSearch {
		tavilyKey := firstNonEmpty(os.Getenv("RA_TAVILY_API_KEY"), os.Getenv("TAVILY_API_KEY"))
		if strings.TrimSpace(tavilyKey) == "" {
			return fmt.Errorf("--enable-search is enabled but no Tavily API key was found. Set TAVILY_API_KEY (or RA_TAVILY_API_KEY)")
		}
		webCfg = agentloop.WebConfig{
			APIKey:    tavilyKey,
			SearchURL: os.Getenv("RA_TAVILY_BASE_URL"),
		}
	}

	sessionID := uuid.New().String()
	logFile, err := openLogFile(cfg, cwd, sessionID)
	if err != nil {
		return err
	}
	defer logFile.Close()

	fileSink := agentloop.NewJSONLSink(logFile)
	sinks := agentloop.MultiSink{fileSink}
	var buffer *agentloop.BufferSink
	if cfg.JSON {
		buffer = agentloop.NewBufferSink()
		sinks = append(sinks, buffer)
	}
	if cfg.StreamJSON {
		sinks = append(sinks, agentloop.NewJSONLSink(os.Stdout))
	}

	policy := openrouter.DefaultRetryPolicy()
	policy.Retry429 = cfg.Retry429
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		slog.Warn("retrying request", "attempt", attempt, "delay", delay, "error", err)
	}
	client, err := openrouter.NewClient(openrouter.Config{
		APIKey:  apiKey,
		BaseURL: cfg.BaseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 20 * time.Second}).DialContext,
			},
		},
		Policy: &policy,
	})
	if err != nil {
		return err
	}

	registry := agentloop.NewToolRegistry()
	ws := agentloop.NewWorkspace(cwd, cfg.MaxToolOutputChars)
	agentloop.RegisterCoreTools(registry, ws)
	if cfg.EnableSearch {
		agentloop.RegisterWebTools(registry, agentloop.NewWebTools(webCfg))
	}
	if submitEnabled {
		agentloop.RegisterSubmitTool(registry)
	}

	var temperature *float64
	if cfg.TemperatureSet {
		temperature = &cfg.Temperature
	}
	session := agentloop.NewSession(agentloop.SessionConfig{
		Model:              cfg.Model,
		Cwd:                cwd,
		SessionID:          sessionID,
		MaxSteps:           cfg.MaxSteps,
		TimeLimit:          time.Duration(cfg.TimeLimitSec) * time.Second,
		Temperature:        temperature,
		SubmitEnabled:      submitEnabled,
		WebEnabled:         cfg.EnableSearch,
		MaxToolOutputChars: cfg.MaxToolOutputChars,
	}, client, registry, sinks)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, runErr := session.Run(ctx, task)

	if cfg.JSON {
		// Best-effort: emit buffered events even on error.
		_ = buffer.WriteJSONL(os.Stdout)
	}
	if err := fileSink.Err(); err != nil {
		slog.Warn("event log incomplete", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	if !cfg.JSON && !cfg.StreamJSON {
		switch outcome.Kind {
		case agentloop.OutcomeSuccess:
			fmt.Println(outcome.Answer)
		case agentloop.OutcomeLimit:
			fmt.Println(outcome.Reason)
		}
	}
	return nil
}

func loadTask(cfg *Config, prompt string) (string, error) {
	if cfg.PromptFile != "" && prompt != "" {
		return "", fmt.Errorf("provide either a PROMPT argument or --prompt-file, not both")
	}
	if cfg.PromptFile != "" {
		data, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", cfg.PromptFile, err)
		}
		return string(data), nil
	}
	if prompt != "" {
		return prompt, nil
	}
	return "", fmt.Errorf("prompt or prompt_file is required")
}

func canonicalizeCwd(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("invalid working directory %s: %w", dir, err)
	}
	return resolved, nil
}

// openLogFile creates the JSONL event log. The default filename embeds a
// timestamp and the session id so concurrent runs never clobber each other.
func openLogFile(cfg *Config, cwd, sessionID string) (*os.File, error) {
	path := cfg.LogPath
	if path == "" {
		dir := cfg.LogDir
		if dir == "" {
			dir = cwd
		} else if !filepath.IsAbs(dir) {
			dir = filepath.Join(cwd, dir)
		}
		ts := strings.ReplaceAll(time.Now().UTC().Format(time.RFC3339), ":", "-")
		path = filepath.Join(dir, fmt.Sprintf("ra-%s-%s.jsonl", ts, sessionID))
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}
	return f, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
