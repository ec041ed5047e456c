package core

// EngineConfig is the per-runtime configuration the pool hands to
// Backend.NewRuntime. It is a plain struct — no config-file or env-var
// library is introduced for it, consistent with the rest of this
// module's configuration surface.
type EngineConfig struct {
	// MaxContexts bounds how many Worker Contexts may be alive at once on
	// one Worker Runtime.
	MaxContexts int

	// MemoryLimitMB, if > 0, caps the engine's heap per runtime.
	MemoryLimitMB int
}
