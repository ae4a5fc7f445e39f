package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jypengpeng/CanvasLMS-Agent/internal/agent"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/canvas"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/config"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/server"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/tools"
)

// Answerer runs one agent loop per question (allows mocking in tests)
type Answerer interface {
	Answer(ctx context.Context, message, canvasToken string, run config.RunConfig) (string, error)
}

// AskOptions for running ask with custom dependencies
type AskOptions struct {
	Answerer Answerer
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

// ToolOptions for running tool with custom dependencies
type ToolOptions struct {
	Stdout io.Writer
}

// ServeOptions for running serve with custom dependencies
type ServeOptions struct {
	SignalChan chan os.Signal
}

var rootCmd = &cobra.Command{
	Use:   "canvas-agent",
	Short: "canvas-agent - Canvas LMS chat assistant",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and web frontend",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask the agent in single message or REPL mode",
	RunE:  runAsk,
}

var toolCmd = &cobra.Command{
	Use:   "tool NAME",
	Short: "Invoke one Canvas tool directly, bypassing the agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runTool,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show canvas-agent status",
	RunE:  runStatus,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize config",
	RunE:  runInit,
}

var (
	messageFlag string
	tokenFlag   string
	courseFlag  string
)

func init() {
	askCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single question to ask")
	askCmd.Flags().StringVar(&tokenFlag, "token", "", "Canvas API token (or set CANVAS_TOKEN)")
	toolCmd.Flags().StringVar(&tokenFlag, "token", "", "Canvas API token (or set CANVAS_TOKEN)")
	toolCmd.Flags().StringVar(&courseFlag, "course", "", "Course name filter for get_announcements")
	rootCmd.AddCommand(serveCmd, askCmd, toolCmd, statusCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveToken prefers the flag over the environment. The token is
// never persisted and never printed.
func resolveToken() string {
	if tokenFlag != "" {
		return tokenFlag
	}
	return os.Getenv("CANVAS_TOKEN")
}

func runServe(cmd *cobra.Command, args []string) error {
	return runServeWithOptions(ServeOptions{})
}

// runServeWithOptions runs the server with injectable dependencies for testing
func runServeWithOptions(opts ServeOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw := agent.New(cfg)
	srv, err := server.New(cfg, gw)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// Use injected signal channel for testing, or create default
	sigCh := opts.SignalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[main] shutting down...")
	return srv.Stop()
}

func runAsk(cmd *cobra.Command, args []string) error {
	return runAskWithOptions(AskOptions{})
}

// runAskWithOptions runs the agent with injectable dependencies for testing
func runAskWithOptions(opts AskOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	token := resolveToken()
	if token == "" {
		return fmt.Errorf("canvas token not set; pass --token or set CANVAS_TOKEN")
	}

	answerer := opts.Answerer
	if answerer == nil {
		answerer = agent.New(cfg)
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	ctx := context.Background()

	// Single message mode
	if messageFlag != "" {
		run := cfg.RunDefaults()
		run.RequestID = uuid.NewString()
		answer, err := answerer.Answer(ctx, messageFlag, token, run)
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
		fmt.Fprintln(stdout, answer)
		return nil
	}

	// REPL mode
	fmt.Fprintln(stdout, "canvas-agent (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		run := cfg.RunDefaults()
		run.RequestID = uuid.NewString()
		answer, err := answerer.Answer(ctx, input, token, run)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(stdout, answer)
	}
	return nil
}

func runTool(cmd *cobra.Command, args []string) error {
	return runToolWithOptions(args[0], ToolOptions{})
}

// runToolWithOptions invokes one tool with injectable dependencies for testing
func runToolWithOptions(name string, opts ToolOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	token := resolveToken()
	if token == "" {
		return fmt.Errorf("canvas token not set; pass --token or set CANVAS_TOKEN")
	}
	if strings.TrimSpace(cfg.Canvas.BaseURL) == "" {
		return config.ErrMissingCanvasBase
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	requestID := uuid.NewString()
	client := canvas.New(cfg.Canvas.BaseURL, token, requestID)
	set := tools.NewSet(client, requestID)

	ctx := context.Background()
	var out string
	switch name {
	case tools.NameListCourses:
		out, err = set.ListMyCourses(ctx)
	case tools.NameUpcomingAssignments:
		out, err = set.UpcomingAssignments(ctx)
	case tools.NameAnnouncements:
		out, err = set.Announcements(ctx, courseFlag)
	default:
		return fmt.Errorf("unknown tool %q (expected %s, %s, or %s)",
			name, tools.NameListCourses, tools.NameUpcomingAssignments, tools.NameAnnouncements)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, out)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Canvas base URL: %s\n", displayOrNotSet(cfg.Canvas.BaseURL))
	fmt.Printf("LLM base URL: %s\n", displayOrNotSet(cfg.LLM.BaseURL))
	fmt.Printf("Model: %s\n", cfg.LLM.Model)
	if cfg.LLM.APIKey != "" && len(cfg.LLM.APIKey) > 8 {
		masked := cfg.LLM.APIKey[:4] + "..." + cfg.LLM.APIKey[len(cfg.LLM.APIKey)-4:]
		fmt.Printf("LLM API Key: %s\n", masked)
	} else if cfg.LLM.APIKey != "" {
		fmt.Println("LLM API Key: set")
	} else {
		fmt.Println("LLM API Key: not set")
	}
	fmt.Printf("Max tool iterations: %d\n", cfg.Agent.MaxToolIterations)
	fmt.Printf("Agent timeout: %ds\n", cfg.Agent.TimeoutSeconds)
	fmt.Printf("Verbose: %v\n", cfg.Agent.Verbose)

	return nil
}

func displayOrNotSet(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func runInit(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set canvas.baseUrl, llm.baseUrl and llm.apiKey\n", cfgPath)
	fmt.Println("  2. Or set CANVAS_BASE_URL, LLM_BASE_URL and LLM_API_KEY environment variables")
	fmt.Println("  3. Run 'canvas-agent serve' and open http://localhost:8080")

	return nil
}
