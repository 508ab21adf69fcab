package storage

import (
	"context"
	"strings"
)

// scoped confines every operation to a namespace prefix. The plugin runtime
// hands each plugin a storage view scoped to plugins/{pluginID}/{tenantID},
// so a plugin physically cannot address another tenant's or plugin's files.
type scoped struct {
	base      Storage
	namespace string
}

// Scoped returns a view of base confined to the given namespace. Names are
// validated before prefixing, so "../" tricks cannot break out of the scope.
func Scoped(base Storage, namespace string) Storage {
	return &scoped{
		base:      base,
		namespace: strings.Trim(namespace, "/"),
	}
}

func (s *scoped) qualify(name string) (string, error) {
	cleaned, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return s.namespace + "/" + cleaned, nil
}

func (s *scoped) strip(name string) string {
	return strings.TrimPrefix(name, s.namespace+"/")
}

func (s *scoped) Upload(ctx context.Context, name string, data []byte, contentType string) (Handle, error) {
	qualified, err := s.qualify(name)
	if err != nil {
		return Handle{}, err
	}
	handle, err := s.base.Upload(ctx, qualified, data, contentType)
	if err != nil {
		return Handle{}, err
	}
	handle.Name = s.strip(handle.Name)
	return handle, nil
}

func (s *scoped) Download(ctx context.Context, name string) ([]byte, error) {
	qualified, err := s.qualify(name)
	if err != nil {
		return nil, err
	}
	return s.base.Download(ctx, qualified)
}

func (s *scoped) Delete(ctx context.Context, name string) error {
	qualified, err := s.qualify(name)
	if err != nil {
		return err
	}
	return s.base.Delete(ctx, qualified)
}

func (s *scoped) List(ctx context.Context, prefix string) ([]Handle, error) {
	qualified := s.namespace
	if prefix != "" {
		var err error
		qualified, err = s.qualify(prefix)
		if err != nil {
			return nil, err
		}
	}
	handles, err := s.base.List(ctx, qualified)
	if err != nil {
		return nil, err
	}
	for i := range handles {
		handles[i].Name = s.strip(handles[i].Name)
	}
	return handles, nil
}
