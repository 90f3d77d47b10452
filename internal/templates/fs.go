// Package templates adapts external template content to the engine's
// TemplateSource contract. Template generation itself is owned by the
// template toolchain; the engine treats the documents as opaque blobs.
package templates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Dev-Ramps/DevRamps-CLI/internal/plan"
)

// FSSource serves pre-generated template documents from a directory, one
// file per stack kind ("org.template", "pipeline.template", ...).
type FSSource struct {
	dir string
}

func NewFSSource(dir string) *FSSource {
	return &FSSource{dir: dir}
}

func (s *FSSource) Template(_ context.Context, d *plan.StackDeployment, _ any) ([]byte, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s.template", d.Kind))
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template for %s stack %s: %w", d.Kind, d.StackName, err)
	}
	return body, nil
}
