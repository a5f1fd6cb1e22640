package agentmesh

// Version information for the AgentMesh messaging library.
const (
	// Version is the current library version
	Version = "development"

	// APIVersion is the current API version
	APIVersion = "v1alpha1"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
