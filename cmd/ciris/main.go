// Command ciris runs the agent core against one compile-time adapter:
// a Discord bot, a terminal session, or an HTTP API, chosen with
// --mode/--adapter. See the flag list below for the full surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ciris-ai/ciris-core/adapters"
	"github.com/ciris-ai/ciris-core/agent"
	"github.com/ciris-ai/ciris-core/config"
	"github.com/ciris-ai/ciris-core/conscience"
	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/dispatch"
	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/dream"
	"github.com/ciris-ai/ciris-core/graph"
	"github.com/ciris-ai/ciris-core/handlers"
	"github.com/ciris-ai/ciris-core/processor"
	"github.com/ciris-ai/ciris-core/taskstore"
	"github.com/ciris-ai/ciris-core/telemetry"
)

// repeatableFlag collects every occurrence of a flag, matching the
// spec's "--mode may repeat via --adapter" and "--task (repeatable)"
// surface with the standard library's flag.Value seam.
type repeatableFlag []string

func (r *repeatableFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatableFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ciris", flag.ContinueOnError)

	var modes repeatableFlag
	fs.Var(&modes, "mode", "front-end adapter to run: discord, cli, or api (repeatable)")
	fs.Var(&modes, "adapter", "alias for --mode")

	profileName := fs.String("profile", "", "named profile (overridden by CIRIS_PROFILE)")
	configPath := fs.String("config", "", "path to a profile YAML file")
	host := fs.String("host", "", "API adapter bind host")
	port := fs.Int("port", 0, "API adapter bind port")
	noInteractive := fs.Bool("no-interactive", false, "disable the CLI adapter's stdin reader")
	debug := fs.Bool("debug", false, "verbose console output")
	mockLLM := fs.Bool("mock-llm", false, "use the in-process mock LLM instead of calling out")
	timeoutSeconds := fs.Int("timeout", 0, "overall run timeout in seconds, 0 for none")
	var tasks repeatableFlag
	fs.Var(&tasks, "task", "preload a task description (repeatable)")
	handlerName := fs.String("handler", "", "invoke a single handler directly instead of running the round loop")
	paramsJSON := fs.String("params", "{}", "JSON parameters for --handler")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if v := os.Getenv("CIRIS_PROFILE"); v != "" {
		*profileName = v
	}
	prof, err := loadProfile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading profile:", err)
		return 1
	}
	if prof.Name == "" {
		prof.Name = *profileName
	}

	logCfg := core.LoggingConfig{Level: os.Getenv("LOG_LEVEL")}
	logger := core.NewProductionLogger(logCfg, core.DevelopmentConfig{Pretty: *debug}, "ciris")
	out := newConsole(*debug)

	kind := adapters.AdapterCLI
	if len(modes) > 0 {
		kind = adapters.Kind(modes[0])
		if len(modes) > 1 {
			out.Infof("multiple --mode values given, running only the first (%s); the rest are ignored in this build", kind)
		}
	}

	graphStore := graph.NewInMemoryStore()
	taskStore := taskstore.NewInMemoryStore()
	cfgService := config.NewService(graphStore, logger)
	if err := cfgService.Set(context.Background(), config.AgentModeKey, config.StringValue(agent.ModeNormal), "startup"); err != nil {
		out.Infof("config seed failed: %v", err)
	}

	bundle, err := adapters.New(adapters.Config{
		Kind:                     kind,
		DiscordBotToken:          os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordChannelID:         os.Getenv("DISCORD_CHANNEL_ID"),
		DiscordDeferralChannelID: os.Getenv("DISCORD_DEFERRAL_CHANNEL_ID"),
		APIHost:                  *host,
		APIPort:                  *port,
		MockLLM:                  *mockLLM,
		LLMBaseURL:               prof.LLMBaseURL,
		LLMModel:                 prof.LLMModel,
		MemoryStore:              graphStore,
		Logger:                   logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "adapter initialization failed:", err)
		return 1
	}

	registry := core.NewServiceRegistry(logger)
	if err := adapters.RegisterAll(registry, bundle); err != nil {
		fmt.Fprintln(os.Stderr, "capability registration failed:", err)
		return 1
	}

	d := dispatch.New(taskStore, registry, nil, logger)
	handlers.RegisterAll(d, registry, taskStore, logger)

	if *handlerName != "" {
		return runDirectHandler(d, taskStore, *handlerName, *paramsJSON, out)
	}

	selector := newLLMSelector(bundle.LLM)
	orchestrator := &dma.Orchestrator{Ethical: selector.Ethical, CS: selector.CommonSense, DS: selector.Domain, Select: selector.Select, Logger: logger}
	faculties := newEpistemicFaculties(bundle.LLM)
	checks := conscience.Checks{
		Entropy:           faculties.Entropy,
		Coherence:         faculties.Coherence,
		OptimizationVeto:  faculties.OptimizationVeto,
		EpistemicHumility: faculties.EpistemicHumility,
	}
	correlations := telemetry.NewCorrelationLog()
	pipeline := agent.NewPipeline(orchestrator, checks, d, correlations, logger)

	work := processor.WorkConfig{MaxActiveTasks: prof.MaxActiveTasks, MaxActiveThoughts: prof.MaxActiveThoughts, BatchSize: prof.BatchSize}
	homeChannel := prof.HomeChannel
	if homeChannel == "" {
		homeChannel = bundle.Communication.GetDefaultChannel()
	}

	proc := agent.New(taskStore, graphStore, cfgService, logger)
	proc.Register(processor.NewWakeupProcessor(taskStore, pipeline.Run, homeChannel, logger))
	proc.Register(processor.NewWorkProcessor(taskStore, pipeline.Run, seedThought, work, logger))
	proc.Register(processor.NewPlayProcessor(taskStore, pipeline.Run, seedThought, work, logger))
	proc.Register(processor.NewSolitudeProcessor(taskStore, pipeline.Run, seedThought, work, logger, nil))
	proc.Register(processor.NewShutdownProcessor(taskStore, pipeline.Run, logger))
	dreamHooks := processor.DreamHooks{Analyze: func(ctx context.Context, now time.Time) error {
		_, _, err := dream.Analyze(ctx, graphStore, now)
		return err
	}}
	proc.Register(processor.NewDreamProcessor(dreamHooks, 5*time.Minute, 30*time.Minute, logger))

	var preload []taskstore.Task
	for _, desc := range tasks {
		preload = append(preload, taskstore.Task{Description: desc, Status: taskstore.TaskPending})
	}
	proc.SetPreloadTasks(preload)
	proc.OnRound(func(round int, res processor.StateResult) {
		out.Debugf("round %d complete: %s", round, summarize(map[string]interface{}{"state": proc.State()}))
	})

	maxRounds := 0
	if v := os.Getenv("CIRIS_MAX_ROUNDS"); v != "" {
		fmt.Sscanf(v, "%d", &maxRounds)
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if *timeoutSeconds > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*timeoutSeconds)*time.Second)
		defer cancel()
	}

	if kind == adapters.AdapterCLI && !*noInteractive {
		go runInteractive(taskStore, out)
	}

	if err := proc.Start(ctx, maxRounds); err != nil {
		fmt.Fprintln(os.Stderr, "agent processor failed:", err)
		return 1
	}
	out.Infof("agent processor exited in state %s after %d rounds", proc.State(), proc.Round())
	return 0
}

// runInteractive feeds operator-typed lines into the task store as new
// tasks, so a plain CLI session is conversational without the operator
// needing to know about correlation ids or action types.
func runInteractive(store taskstore.Store, out *console) {
	comm := adapters.NewCLICommunication()
	out.Infof("interactive session started, type a line to create a task")
	for {
		line, ok := comm.ReadLine()
		if !ok {
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := store.InsertTask(context.Background(), &taskstore.Task{Description: line, Status: taskstore.TaskPending}); err != nil {
			out.Infof("failed to create task: %v", err)
		}
	}
}

// runDirectHandler bypasses the round loop entirely for --handler
// invocation: one synthetic thought, one dispatch call, then exit.
func runDirectHandler(d *dispatch.Dispatcher, store taskstore.Store, handlerName, paramsJSON string, out *console) int {
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		fmt.Fprintln(os.Stderr, "invalid --params JSON:", err)
		return 1
	}
	taskID, err := store.InsertTask(context.Background(), &taskstore.Task{Description: "direct invocation"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	thoughtID, err := store.InsertThought(context.Background(), &taskstore.Thought{TaskID: taskID, Content: "direct invocation"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	thought, err := store.GetThought(context.Background(), thoughtID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	result := dma.ActionSelectionDMAResult{SelectedAction: dma.ActionType(handlerName), Parameters: params}
	if err := d.Dispatch(context.Background(), result, thought); err != nil {
		fmt.Fprintln(os.Stderr, "handler invocation failed:", err)
		return 1
	}
	out.Infof("handler %s invoked", handlerName)
	return 0
}
