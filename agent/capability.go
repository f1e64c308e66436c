package agent

// Capability is a tool an Agent may invoke. The set of variants is closed:
// SearchCapability, URLFetchCapability and AgentDelegation.
type Capability interface {
	// Kind returns a stable identifier of the variant.
	Kind() CapabilityKind
	isCapability()
}

// CapabilityKind names a Capability variant.
type CapabilityKind string

const (
	KindSearch     CapabilityKind = "search"
	KindURLFetch   CapabilityKind = "url_fetch"
	KindDelegation CapabilityKind = "delegate"
)

// SearchCapability lets the agent query a web search provider.
type SearchCapability struct{}

// Kind implements Capability.
func (SearchCapability) Kind() CapabilityKind { return KindSearch }
func (SearchCapability) isCapability()        {}

// URLFetchCapability lets the agent retrieve the content of URLs found in its input.
type URLFetchCapability struct{}

// Kind implements Capability.
func (URLFetchCapability) Kind() CapabilityKind { return KindURLFetch }
func (URLFetchCapability) isCapability()        {}

// AgentDelegation wraps another Agent as a callable tool. Target is a
// non-owning reference and must be fully constructed.
type AgentDelegation struct {
	Target *Agent
}

// Kind implements Capability.
func (AgentDelegation) Kind() CapabilityKind { return KindDelegation }
func (AgentDelegation) isCapability()        {}

// Delegate returns a delegation capability targeting a.
func Delegate(a *Agent) AgentDelegation { return AgentDelegation{Target: a} }

// Search returns the web search capability.
func Search() SearchCapability { return SearchCapability{} }

// URLFetch returns the URL fetch capability.
func URLFetch() URLFetchCapability { return URLFetchCapability{} }
