package adapters

// CapabilityMetadata describes one capability a provider advertises,
// condensed from the teacher's agent-registration catalog: this build
// is a single process registering a handful of compile-time adapters,
// not a mesh of independently-deployed agents, so the teacher's
// Kubernetes service metadata, heartbeat, and catalog-sync fields have
// no referent here and are dropped. What survives is the part a
// handler or an operator actually reads: what the capability does and
// how expensive it is to call.
type CapabilityMetadata struct {
	Name        string
	ServiceType string
	Description string

	Latency string // "low", "medium", "high"
	Cost    string // "free", "metered"

	Prerequisites []string
}

// Catalog is the in-process registry of advertised capabilities, kept
// alongside (not instead of) core.ServiceRegistry: the registry
// answers "give me a provider for this service type", the catalog
// answers "what can this agent do", the question an operator or a
// WiseAuthority guidance request needs answered in prose.
type Catalog struct {
	entries map[string]CapabilityMetadata
}

func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]CapabilityMetadata)}
}

func (c *Catalog) Add(meta CapabilityMetadata) {
	c.entries[meta.Name] = meta
}

func (c *Catalog) Get(name string) (CapabilityMetadata, bool) {
	m, ok := c.entries[name]
	return m, ok
}

// Describe renders the catalog as short, model-friendly prose -- the
// teacher's GetCatalogForLLM idea, condensed to what this build needs:
// a system-prompt fragment listing what the agent can currently do.
func (c *Catalog) Describe() string {
	out := ""
	for _, m := range c.entries {
		out += "- " + m.Name + " (" + m.ServiceType + "): " + m.Description + "\n"
	}
	return out
}
