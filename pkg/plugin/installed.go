package plugin

import (
	"time"
)

// InstalledPlugin is the persisted per-tenant installation state of a
// plugin. It is immutable-by-replacement: every transition returns a new
// value with UpdatedAt refreshed, never mutating the receiver. No
// transition fails; all are total over well-formed input.
type InstalledPlugin struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenantId"`
	PluginID    string         `json:"pluginId"`
	Version     string         `json:"version"`
	Status      Status         `json:"status"`
	Settings    map[string]any `json:"settings"`
	Permissions []Permission   `json:"permissions"`
	InstalledAt time.Time      `json:"installedAt"`
	EnabledAt   *time.Time     `json:"enabledAt,omitempty"`
	DisabledAt  *time.Time     `json:"disabledAt,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewInstalledPlugin creates a fresh installation record in status
// "installed" with empty settings and the granted permission snapshot.
func NewInstalledPlugin(id, tenantID, pluginID, version string, permissions []Permission) InstalledPlugin {
	now := time.Now()
	grants := make([]Permission, len(permissions))
	copy(grants, permissions)
	return InstalledPlugin{
		ID:          id,
		TenantID:    tenantID,
		PluginID:    pluginID,
		Version:     version,
		Status:      StatusInstalled,
		Settings:    map[string]any{},
		Permissions: grants,
		InstalledAt: now,
		UpdatedAt:   now,
	}
}

// Enable returns a copy in status "enabled" with EnabledAt set and any
// prior error cleared.
func (p InstalledPlugin) Enable() InstalledPlugin {
	now := time.Now()
	next := p.clone()
	next.Status = StatusEnabled
	next.EnabledAt = &now
	next.LastError = ""
	next.UpdatedAt = now
	return next
}

// Disable returns a copy in status "disabled" with DisabledAt set.
func (p InstalledPlugin) Disable() InstalledPlugin {
	now := time.Now()
	next := p.clone()
	next.Status = StatusDisabled
	next.DisabledAt = &now
	next.UpdatedAt = now
	return next
}

// UpdateSettings returns a copy with patch shallow-merged into the existing
// settings; patch keys win. Applying the same patch twice yields the same map.
func (p InstalledPlugin) UpdateSettings(patch map[string]any) InstalledPlugin {
	next := p.clone()
	for k, val := range patch {
		next.Settings[k] = val
	}
	next.UpdatedAt = time.Now()
	return next
}

// SetError returns a copy in status "error" with the failure message recorded.
func (p InstalledPlugin) SetError(message string) InstalledPlugin {
	next := p.clone()
	next.Status = StatusError
	next.LastError = message
	next.UpdatedAt = time.Now()
	return next
}

// UpdateVersion returns a copy carrying the new version with any prior
// error cleared.
func (p InstalledPlugin) UpdateVersion(version string) InstalledPlugin {
	next := p.clone()
	next.Version = version
	next.LastError = ""
	next.UpdatedAt = time.Now()
	return next
}

// clone deep-copies the maps and slices so transitions never alias the
// receiver's state.
func (p InstalledPlugin) clone() InstalledPlugin {
	next := p
	next.Settings = make(map[string]any, len(p.Settings))
	for k, val := range p.Settings {
		next.Settings[k] = val
	}
	next.Permissions = make([]Permission, len(p.Permissions))
	copy(next.Permissions, p.Permissions)
	if p.EnabledAt != nil {
		at := *p.EnabledAt
		next.EnabledAt = &at
	}
	if p.DisabledAt != nil {
		at := *p.DisabledAt
		next.DisabledAt = &at
	}
	return next
}

// HasPermission reports whether the installation was granted a permission.
func (p InstalledPlugin) HasPermission(perm Permission) bool {
	for _, granted := range p.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}
