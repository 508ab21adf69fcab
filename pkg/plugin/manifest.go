package plugin

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// pluginIDRegex validates plugin ID format (lowercase alphanumeric with hyphens)
var pluginIDRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// Validator validates plugin manifests at registration time. Validation is
// pure: the same manifest always produces the same verdict.
type Validator struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewValidator creates a manifest validator.
func NewValidator(logger zerolog.Logger) *Validator {
	return &Validator{
		logger:       logger.With().Str("component", "manifest-validator").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(ManifestSchema),
	}
}

// Validate checks a manifest against the JSON schema and the invariants the
// schema cannot express. All failures are reported as ErrInvalidManifest.
func (v *Validator) Validate(manifest Manifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := v.validateSchema(data); err != nil {
		return err
	}
	if err := v.validateManifest(manifest); err != nil {
		return err
	}

	v.logger.Debug().
		Str("id", manifest.ID).
		Str("version", manifest.Version).
		Msg("Manifest validated")

	return nil
}

// ParseManifest parses and validates a manifest from JSON bytes.
func (v *Validator) ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest JSON: %v", ErrInvalidManifest, err)
	}
	if err := v.validateSchema(data); err != nil {
		return nil, err
	}
	if err := v.validateManifest(manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (v *Validator) validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(v.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: schema validation error: %v", ErrInvalidManifest, err)
	}
	if !result.Valid() {
		var errMsg string
		for i, schemaErr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += schemaErr.String()
		}
		return fmt.Errorf("%w: %s", ErrInvalidManifest, errMsg)
	}
	return nil
}

// validateManifest covers the invariants beyond JSON schema reach.
func (v *Validator) validateManifest(manifest Manifest) error {
	if !pluginIDRegex.MatchString(manifest.ID) {
		return fmt.Errorf("%w: invalid plugin ID %q (must be lowercase alphanumeric with hyphens)", ErrInvalidManifest, manifest.ID)
	}

	if _, err := semver.NewVersion(manifest.Version); err != nil {
		return fmt.Errorf("%w: invalid version %q: %v", ErrInvalidManifest, manifest.Version, err)
	}

	if manifest.Permissions == nil {
		return fmt.Errorf("%w: permissions must be a list (may be empty)", ErrInvalidManifest)
	}
	for i, perm := range manifest.Permissions {
		if perm == "" {
			return fmt.Errorf("%w: permission %d is empty", ErrInvalidManifest, i)
		}
	}

	if manifest.Provides == nil {
		return fmt.Errorf("%w: provides section is required", ErrInvalidManifest)
	}

	for i, item := range manifest.Provides.MenuItems {
		if item.Label == "" {
			return fmt.Errorf("%w: menu item %d is missing a label", ErrInvalidManifest, i)
		}
		if item.Route == "" {
			return fmt.Errorf("%w: menu item %d is missing a route", ErrInvalidManifest, i)
		}
	}

	seen := make(map[string]bool, len(manifest.Provides.Settings))
	for i, field := range manifest.Provides.Settings {
		if field.Key == "" {
			return fmt.Errorf("%w: setting field %d is missing a key", ErrInvalidManifest, i)
		}
		if !ValidSettingTypes[field.Type] {
			return fmt.Errorf("%w: setting %q has unrecognized type %q", ErrInvalidManifest, field.Key, field.Type)
		}
		if seen[field.Key] {
			return fmt.Errorf("%w: setting %q declared twice", ErrInvalidManifest, field.Key)
		}
		seen[field.Key] = true
		if field.Validation != "" {
			if _, err := regexp.Compile(field.Validation); err != nil {
				return fmt.Errorf("%w: setting %q has an invalid validation pattern: %v", ErrInvalidManifest, field.Key, err)
			}
		}
	}

	return nil
}
