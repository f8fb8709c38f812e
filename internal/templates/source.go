// Package templates reads template packages from a directory tree laid out
// as <root>/<templateID>/package.json plus the resource payloads it names.
package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// PackageFile is the manifest file name inside a template directory.
const PackageFile = "package.json"

// ErrTemplateNotFound is returned when no package exists for a template id.
var ErrTemplateNotFound = errors.New("template not found")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError reports a malformed template package. It is raised before
// any workflow is touched.
type ValidationError struct {
	TemplateID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid template package %q: %s", e.TemplateID, e.Reason)
}

// FSSource loads template packages from the local filesystem.
type FSSource struct {
	Root string
}

// NewFSSource creates a new FSSource.
func NewFSSource(root string) *FSSource {
	return &FSSource{Root: root}
}

func (s *FSSource) dir(templateID string) (string, error) {
	if templateID == "" || !filepath.IsLocal(templateID) || strings.ContainsAny(templateID, `/\`) {
		return "", &ValidationError{TemplateID: templateID, Reason: "template id is not a plain name"}
	}
	return filepath.Join(s.Root, templateID), nil
}

// Load reads and validates the package for templateID. Comments and
// trailing commas in package.json are tolerated.
func (s *FSSource) Load(ctx context.Context, templateID string) (*models.TemplatePackage, error) {
	dir, err := s.dir(templateID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, PackageFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s for %s: %w", PackageFile, templateID, err)
	}
	return Parse(templateID, data)
}

// Parse decodes and validates package data for templateID.
func Parse(templateID string, data []byte) (*models.TemplatePackage, error) {
	invalid := func(format string, args ...any) error {
		return &ValidationError{TemplateID: templateID, Reason: fmt.Sprintf(format, args...)}
	}

	stripped := jsonc.ToJSON(data)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(stripped, &raw); err != nil {
		return nil, invalid("package is not a JSON object: %v", err)
	}
	for _, section := range []string{"metadata", "workflow", "resources"} {
		if isMissing(raw[section]) {
			return nil, invalid("missing %s", section)
		}
	}

	var workflow map[string]json.RawMessage
	if err := json.Unmarshal(raw["workflow"], &workflow); err != nil {
		return nil, invalid("workflow is not an object")
	}
	for _, field := range []string{"blocks", "edges"} {
		if !isArray(workflow[field]) {
			return nil, invalid("workflow.%s must be an array", field)
		}
	}

	var pkg models.TemplatePackage
	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.UseNumber()
	if err := dec.Decode(&pkg); err != nil {
		return nil, invalid("%v", err)
	}

	if err := validate.Struct(pkg.Metadata); err != nil {
		return nil, invalid("metadata: %s", describe(err))
	}
	if pkg.Metadata.ID != templateID {
		return nil, invalid("metadata id %q does not match template id", pkg.Metadata.ID)
	}
	if err := validate.Struct(pkg.Resources); err != nil {
		return nil, invalid("resources: %s", describe(err))
	}

	seen := make(map[string]bool, len(pkg.Resources.Resources))
	for _, r := range pkg.Resources.Resources {
		if seen[r.ID] {
			return nil, invalid("duplicate resource id %q", r.ID)
		}
		seen[r.ID] = true
		if !filepath.IsLocal(filepath.FromSlash(r.Source.Path)) {
			return nil, invalid("resource %q source path %q leaves the package", r.ID, r.Source.Path)
		}
	}
	return &pkg, nil
}

// ReadResource returns the payload stored at path inside the template
// package. Paths that would escape the package directory are rejected.
func (s *FSSource) ReadResource(ctx context.Context, templateID, path string) ([]byte, error) {
	dir, err := s.dir(templateID)
	if err != nil {
		return nil, err
	}
	local := filepath.FromSlash(path)
	if !filepath.IsLocal(local) {
		return nil, &ValidationError{TemplateID: templateID, Reason: fmt.Sprintf("resource path %q leaves the package", path)}
	}
	data, err := os.ReadFile(filepath.Join(dir, local))
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s: %w", path, err)
	}
	return data, nil
}

// List returns the ids of every directory under Root holding a package.json.
func (s *FSSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Root, e.Name(), PackageFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func isMissing(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
