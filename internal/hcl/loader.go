package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load parses path and every file it includes, depth first, and merges them
// into one model. Including a file that was already loaded, directly or
// through another include, is rejected.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	st := &loadState{
		parser:  hclparse.NewParser(),
		visited: make(map[string]bool),
	}
	model, err := st.load(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "files", len(model.Files), "execs", len(model.Execs), "tasks", len(model.Tasks))
	return model, nil
}

type loadState struct {
	parser  *hclparse.Parser
	visited map[string]bool
}

func (st *loadState) load(ctx context.Context, path string, chain []string) (*config.Model, error) {
	real, err := realPath(path)
	if err != nil {
		return nil, errs.Configf("config %s: %v", path, err)
	}
	if st.visited[real] {
		return nil, errs.Configf("config already included: %s (via %s)", real, strings.Join(append(chain, real), " -> "))
	}
	st.visited[real] = true
	chain = append(chain, real)
	ctxlog.FromContext(ctx).Debug("Loading config file.", "file", real, "depth", len(chain))

	root, err := st.parse(real)
	if err != nil {
		return nil, err
	}

	model, err := translateFile(real, root)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(real)
	for _, inc := range root.Include {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		paths, err := expandInclude(inc)
		if err != nil {
			return nil, errs.Configf("include %s from %s: %v", inc, real, err)
		}
		for _, p := range paths {
			sub, err := st.load(ctx, p, chain)
			if err != nil {
				return nil, err
			}
			if model, err = merge(model, sub); err != nil {
				return nil, fmt.Errorf("merging %s into %s: %w", p, real, err)
			}
		}
	}
	return model, nil
}

// expandInclude turns a directory include into the config files below it,
// in name order. Files are returned as is.
func expandInclude(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		// Missing files are reported by load with the include chain.
		return []string{path}, nil
	}
	return fsutil.FindFilesByExtension(path, ".hcl", ".json")
}

func (st *loadState) parse(path string) (*fileRoot, error) {
	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		file, diags = st.parser.ParseJSONFile(path)
	} else {
		file, diags = st.parser.ParseHCLFile(path)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", errs.ErrConfig, path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", errs.ErrConfig, path, diags)
	}
	return &root, nil
}

func realPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
