package plugin

import (
	"context"
)

// Plugin is the capability contract every plugin implementation satisfies.
// Implementations are compiled into the host and registered by ID; a single
// implementation serves every tenant, so per-tenant state must live behind
// the Context it receives, never in the implementation itself.
//
// Each hook receives a freshly built Context bound to one (tenant, plugin)
// pair. Hooks may fail by returning an error; the registry decides whether
// the failure aborts the operation or is recorded against the installation.
type Plugin interface {
	// Manifest returns the plugin's static self-declaration.
	Manifest() Manifest

	// OnInstall creates whatever per-tenant resources the plugin needs:
	// its own collections, default settings, seed documents. The use-case
	// layer guarantees it is never called for an already-installed tenant.
	OnInstall(ctx context.Context, pc *Context) error

	// OnEnable registers event subscriptions and starts background behavior.
	// The registry guarantees it is not called twice without an intervening
	// disable for the same tenant.
	OnEnable(ctx context.Context, pc *Context) error

	// OnDisable reverses OnEnable: remove subscriptions, stop behavior.
	OnDisable(ctx context.Context, pc *Context) error

	// OnUninstall reverses OnInstall. A plugin may choose to retain tenant
	// data for audit; it communicates that through the context logger.
	OnUninstall(ctx context.Context, pc *Context) error
}
