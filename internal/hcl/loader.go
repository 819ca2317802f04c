// Package hcl implements the HCL-backed pipeline definition loader. It
// parses .hcl files, decodes them into the schema structures, and
// translates the result into the format-agnostic config model.
package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/packetgrid/internal/config"
	"github.com/vk/packetgrid/internal/ctxlog"
	"github.com/vk/packetgrid/internal/schema"
)

// Loader loads pipeline definitions from .hcl files or directories of
// them. It implements config.Loader.
type Loader struct{}

// NewLoader creates an HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found at the given paths, decodes and
// translates them, and returns the merged model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, path := range paths {
		found, err := findFiles(path)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", strings.Join(paths, ", "))
	}
	logger.Debug("Pipeline definition files found.", "count", len(files))

	parser := hclparse.NewParser()
	model := &config.Model{}
	for _, file := range files {
		parsed, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", file, diags)
		}

		var f schema.File
		if diags := gohcl.DecodeBody(parsed.Body, nil, &f); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", file, diags)
		}

		for _, p := range f.Pipelines {
			translated, err := translatePipeline(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Pipelines = append(model.Pipelines, translated)
		}
	}

	logger.Debug("Pipeline definitions translated into unified model.",
		"pipelines", len(model.Pipelines))
	return model, nil
}

// findFiles resolves a path to the list of .hcl files it names: the path
// itself for a file, or its immediate .hcl entries for a directory.
func findFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".hcl" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	return files, nil
}
