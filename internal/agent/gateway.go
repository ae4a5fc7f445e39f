package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	sdkagent "github.com/cexll/agentsdk-go/pkg/agent"
	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/openai/openai-go"

	"github.com/jypengpeng/CanvasLMS-Agent/internal/canvas"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/config"
	"github.com/jypengpeng/CanvasLMS-Agent/internal/tools"
)

// Failure kinds the reasoning loop itself can produce. Upstream Canvas
// failures keep their canvas package kinds.
var (
	ErrNonconvergence    = errors.New("agent did not converge within its iteration limit")
	ErrEmptyAnswer       = errors.New("agent returned an empty answer")
	ErrLLMAuthentication = errors.New("llm authentication failed")
)

// Verbose traces quote prompts and answers up to this many runes.
const verboseLogLimit = 2000

const systemPrompt = `You are an assistant for the Canvas learning platform.
- When the user asks about assignments, deadlines, or DDLs, call get_upcoming_assignments first.
- When the user wants a course list or a course reference is unclear, call list_my_courses.
- When the user asks about announcements or notices, call get_announcements, with or without course_name.
- Summarize and order your answer from the structured lists the tools return.
- Keep answers concise, in the user's language, and include key details such as dates, course names, and assignment or announcement titles.`

// Runtime interface for agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// RuntimeFactory creates the Runtime for one request. The token-bound
// tool adapters are handed over fully constructed so the runtime never
// sees the credential.
type RuntimeFactory func(run config.RunConfig, canvasTools []tool.Tool, sysPrompt string) (Runtime, error)

// Options for creating a Gateway
type Options struct {
	RuntimeFactory RuntimeFactory
}

// DefaultRuntimeFactory creates the default agentsdk-go runtime.
func DefaultRuntimeFactory(run config.RunConfig, canvasTools []tool.Tool, sysPrompt string) (Runtime, error) {
	temperature := run.Temperature
	provider := &model.OpenAIProvider{
		APIKey:      run.LLMAPIKey,
		BaseURL:     run.LLMBaseURL,
		ModelName:   run.LLMModel,
		Temperature: &temperature,
	}

	rt, err := api.New(context.Background(), api.Options{
		ModelFactory:  provider,
		SystemPrompt:  sysPrompt,
		MaxIterations: run.MaxToolIterations,
		Timeout:       time.Duration(run.TimeoutSeconds) * time.Second,
		// An empty whitelist disables every shell and filesystem
		// built-in; the model gets exactly the three Canvas tools.
		EnabledBuiltinTools: []string{},
		CustomTools:         canvasTools,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

// Gateway runs one reasoning loop per chat message over a fresh,
// request-scoped runtime.
type Gateway struct {
	cfg     *config.Config
	factory RuntimeFactory
}

// New creates a Gateway with default options
func New(cfg *config.Config) *Gateway {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) *Gateway {
	factory := opts.RuntimeFactory
	if factory == nil {
		factory = DefaultRuntimeFactory
	}
	return &Gateway{cfg: cfg, factory: factory}
}

// Answer runs the agent once for the given message and returns its
// final text. The Canvas token lives only in the client the tool set
// wraps; it is never logged and never part of any returned error.
func (g *Gateway) Answer(ctx context.Context, message, canvasToken string, run config.RunConfig) (string, error) {
	if err := run.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(g.cfg.Canvas.BaseURL) == "" {
		return "", config.ErrMissingCanvasBase
	}

	client := canvas.New(g.cfg.Canvas.BaseURL, canvasToken, run.RequestID)
	set := tools.NewSet(client, run.RequestID)
	canvasTools := set.Tools()

	rt, err := g.factory(run, canvasTools, systemPrompt)
	if err != nil {
		return "", fmt.Errorf("create agent runtime: %w", err)
	}
	defer rt.Close()

	if run.Verbose {
		names := make([]string, len(canvasTools))
		for i, t := range canvasTools {
			names[i] = t.Name()
		}
		log.Printf("[agent] model=%s base=%s tools=%s req_id=%s", run.LLMModel, run.LLMBaseURL, strings.Join(names, ","), run.RequestID)
		log.Printf("[agent] message: %s req_id=%s", truncateForLog(message), run.RequestID)
	}

	resp, err := rt.Run(ctx, api.Request{
		Prompt:    message,
		SessionID: run.RequestID,
		RequestID: run.RequestID,
	})
	if err != nil {
		return "", mapRunError(err, set.RecordedError())
	}

	var answer string
	if resp != nil && resp.Result != nil {
		answer = resp.Result.Output
	}

	// An invalid credential fails the request even when the model
	// produced closing text about the failure.
	if recorded := set.RecordedError(); recorded != nil && errors.Is(recorded, canvas.ErrAuthentication) {
		return "", recorded
	}
	if strings.TrimSpace(answer) == "" {
		return "", ErrEmptyAnswer
	}

	if run.Verbose {
		log.Printf("[agent] final answer: %s req_id=%s", truncateForLog(answer), run.RequestID)
	}
	return answer, nil
}

// mapRunError folds a failed run into the error taxonomy. recorded is
// the first Canvas failure a tool adapter observed during the run; it
// wins over the looping failures it usually causes.
func mapRunError(err, recorded error) error {
	switch {
	case errors.Is(err, sdkagent.ErrMaxIterations):
		if recorded != nil {
			return recorded
		}
		return ErrNonconvergence
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("agent run: %w", err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return fmt.Errorf("%w: status %d", ErrLLMAuthentication, apiErr.StatusCode)
		}
	}

	if recorded != nil {
		return recorded
	}
	return fmt.Errorf("agent run: %w", err)
}

func truncateForLog(s string) string {
	runes := []rune(s)
	if len(runes) <= verboseLogLimit {
		return s
	}
	return string(runes[:verboseLogLimit]) + "…[truncated]"
}
