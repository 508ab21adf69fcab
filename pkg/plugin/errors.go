package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrPluginNotFound means no loaded implementation exists for the
	// requested plugin ID.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginNotInstalled means a lifecycle operation was requested for a
	// tenant that has not installed the plugin.
	ErrPluginNotInstalled = errors.New("plugin not installed")

	// ErrPluginAlreadyInstalled means install was requested twice for the
	// same (tenant, plugin) pair.
	ErrPluginAlreadyInstalled = errors.New("plugin already installed")

	// ErrInvalidManifest means a plugin's declared metadata failed validation.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrInvalidSettings means a settings patch does not conform to the
	// manifest's declared setting fields.
	ErrInvalidSettings = errors.New("invalid settings")
)

// HookError wraps a failure raised by a plugin lifecycle hook. The
// underlying cause is preserved for errors.Is/As.
type HookError struct {
	Hook     string
	PluginID string
	TenantID string
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %s hook %s failed for tenant %s: %v", e.PluginID, e.Hook, e.TenantID, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// ErrHookTimeout is the cause recorded when a hook exceeds its deadline.
var ErrHookTimeout = errors.New("hook timed out")
