package plugin

import (
	"time"
)

// Status represents the lifecycle state of an installed plugin.
type Status string

const (
	StatusInstalled Status = "installed"
	StatusEnabled   Status = "enabled"
	StatusDisabled  Status = "disabled"
	StatusError     Status = "error"
)

// ValidStatuses is the set of all lifecycle states.
var ValidStatuses = map[Status]bool{
	StatusInstalled: true,
	StatusEnabled:   true,
	StatusDisabled:  true,
	StatusError:     true,
}

// Platform event topics published by the lifecycle use-cases.
const (
	TopicPluginInstalled = "plugin.installed"
	TopicPluginEnabled   = "plugin.enabled"
	TopicPluginDisabled  = "plugin.disabled"
)

// Permission is a resource-scoped capability token a plugin may request,
// e.g. "communications:sms:send".
type Permission string

// SettingType enumerates the field types a plugin may declare for its settings.
type SettingType string

const (
	SettingText     SettingType = "text"
	SettingNumber   SettingType = "number"
	SettingBoolean  SettingType = "boolean"
	SettingSelect   SettingType = "select"
	SettingPassword SettingType = "password"
)

// ValidSettingTypes is the set of declarable setting field types.
var ValidSettingTypes = map[SettingType]bool{
	SettingText:     true,
	SettingNumber:   true,
	SettingBoolean:  true,
	SettingSelect:   true,
	SettingPassword: true,
}

// Manifest is a plugin's static self-declaration. It ships with the plugin
// implementation and is never persisted per tenant.
type Manifest struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description"`
	Author      string       `json:"author"`
	Permissions []Permission `json:"permissions"`
	Provides    *Provides    `json:"provides"`
}

// Provides declares the extension points a plugin contributes to the host.
type Provides struct {
	Routes           []RouteDescriptor `json:"routes,omitempty"`
	MenuItems        []MenuItem        `json:"menuItems,omitempty"`
	DashboardWidgets []map[string]any  `json:"dashboardWidgets,omitempty"`
	Settings         []SettingField    `json:"settings,omitempty"`
}

// RouteDescriptor declares an HTTP route contributed by a plugin.
type RouteDescriptor struct {
	Path        string       `json:"path"`
	Method      string       `json:"method"`
	Handler     string       `json:"handler"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// MenuItem declares an admin-UI navigation entry. The host validates label
// and route; everything else passes through to the UI untouched.
type MenuItem struct {
	Label string `json:"label"`
	Route string `json:"route"`
	Icon  string `json:"icon,omitempty"`
	Order int    `json:"order,omitempty"`
}

// SettingField declares one typed setting a tenant can configure.
type SettingField struct {
	Key          string      `json:"key"`
	Type         SettingType `json:"type"`
	Label        string      `json:"label,omitempty"`
	Required     bool        `json:"required,omitempty"`
	DefaultValue any         `json:"defaultValue,omitempty"`
	Options      []string    `json:"options,omitempty"`
	Validation   string      `json:"validation,omitempty"`
}

// CatalogEntry is a marketplace listing for a plugin, persisted so tenants
// can browse and search what is available for installation.
type CatalogEntry struct {
	ID          string    `json:"id"`
	PluginID    string    `json:"pluginId"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Document is a record stored through a plugin's scoped database adapter.
type Document struct {
	ID        string         `json:"id"`
	Body      map[string]any `json:"body"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
