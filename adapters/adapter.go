package adapters

import (
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/graph"
)

// Kind is the compile-time set of front ends this build supports, the
// Open Question's resolution: adapters are chosen at startup from a
// fixed enum rather than dynamically loaded, matching the CLI surface's
// repeatable --mode/--adapter flag.
type Kind string

const (
	AdapterDiscord Kind = "discord"
	AdapterCLI     Kind = "cli"
	AdapterAPI     Kind = "api"
)

// Config carries every adapter's startup parameters; fields unused by
// the selected Kind are ignored rather than required, matching the
// environment variables' "optional hint" contract.
type Config struct {
	Kind Kind

	DiscordBotToken          string
	DiscordChannelID         string
	DiscordDeferralChannelID string

	APIHost string
	APIPort int

	MockLLM    bool
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	MemoryStore graph.Store
	Logger      core.Logger
}

// Bundle is every capability one adapter Kind provides, ready to
// register into the Service Registry.
type Bundle struct {
	Communication Communication
	Tool          *ToolRegistry
	WiseAuthority WiseAuthority
	LLM           LLM
	Memory        Memory
	Audit         Audit
	Catalog       *Catalog

	cli *CLICommunication
}

// New builds the capability bundle for cfg.Kind. A Discord bundle with
// missing credentials fails closed (spec 7: missing configuration is
// fatal at startup) rather than falling back to a different adapter.
func New(cfg Config) (*Bundle, error) {
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	b := &Bundle{
		Tool:    NewToolRegistry(cfg.Logger),
		Memory:  NewGraphMemory(cfg.MemoryStore),
		Audit:   NewGraphAudit(cfg.MemoryStore),
		Catalog: NewCatalog(),
	}

	switch cfg.Kind {
	case AdapterCLI:
		cli := NewCLICommunication()
		b.cli = cli
		b.Communication = cli
		b.WiseAuthority = NewCLIWiseAuthority(cli, 5*time.Minute)
	case AdapterAPI:
		b.Communication = NewAPICommunication()
		b.WiseAuthority = NewCLIWiseAuthority(NewCLICommunication(), 5*time.Minute)
	case AdapterDiscord:
		comm, err := NewDiscordCommunication(cfg.DiscordBotToken, cfg.DiscordChannelID, cfg.DiscordDeferralChannelID, cfg.Logger)
		if err != nil {
			return nil, err
		}
		b.Communication = comm
		b.WiseAuthority = NewDiscordWiseAuthority(comm)
	default:
		return nil, core.NewError("adapters.New", "configuration", core.ErrInvalidConfiguration).WithID(string(cfg.Kind))
	}

	if cfg.MockLLM || cfg.LLMBaseURL == "" {
		b.LLM = &MockLLM{}
	} else {
		b.LLM = NewHTTPLLM(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, nil, cfg.Logger)
	}

	b.Catalog.Add(CapabilityMetadata{Name: string(cfg.Kind) + "_communication", ServiceType: ServiceCommunication, Description: "send and fetch messages on the default channel", Latency: "low", Cost: "free"})
	b.Catalog.Add(CapabilityMetadata{Name: "llm", ServiceType: ServiceLLM, Description: "structured completion calls", Latency: "high", Cost: "metered"})
	b.Catalog.Add(CapabilityMetadata{Name: "graph_memory", ServiceType: ServiceMemory, Description: "memorize, recall, search, forget typed nodes", Latency: "low", Cost: "free"})

	return b, nil
}

// RegisterAll wires every non-nil capability in the bundle into the
// registry as a global (handler == "") provider, the common case for a
// single-front-end process where no handler needs a different provider
// than any other.
func RegisterAll(registry *core.ServiceRegistry, b *Bundle) error {
	providers := []*core.Provider{
		{Name: "communication", ServiceType: ServiceCommunication, Instance: b.Communication, Priority: core.PriorityNormal},
		{Name: "tool", ServiceType: ServiceTool, Instance: b.Tool, Priority: core.PriorityNormal},
		{Name: "wise_authority", ServiceType: ServiceWiseAuthority, Instance: b.WiseAuthority, Priority: core.PriorityNormal},
		{Name: "llm", ServiceType: ServiceLLM, Instance: b.LLM, Priority: core.PriorityNormal},
		{Name: "memory", ServiceType: ServiceMemory, Instance: b.Memory, Priority: core.PriorityNormal},
		{Name: "audit", ServiceType: ServiceAudit, Instance: b.Audit, Priority: core.PriorityNormal},
	}
	for _, p := range providers {
		if p.Instance == nil {
			continue
		}
		if err := registry.RegisterProvider("", p); err != nil {
			return err
		}
	}
	return nil
}
