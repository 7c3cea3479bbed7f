package hcl

import (
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/vk/hostmaint/internal/registry"
)

// merge appends inc to base. Exec and task identifiers must stay unique;
// run settings present in the included file override the includer's.
func merge(base, inc *config.Model) (*config.Model, error) {
	execIDs := make(map[string]bool, len(base.Execs))
	for _, e := range base.Execs {
		execIDs[e.ID] = true
	}
	for _, e := range inc.Execs {
		if execIDs[e.ID] {
			return nil, errs.Configf("duplicate exec %q", e.ID)
		}
	}

	taskIDs := make(map[string]bool, len(base.Tasks))
	for _, t := range base.Tasks {
		taskIDs[t.ID] = true
	}
	for _, t := range inc.Tasks {
		if taskIDs[t.ID] {
			return nil, errs.Configf("duplicate task %q", t.ID)
		}
	}

	out := &config.Model{
		NbWorkers: base.NbWorkers,
		Verbosity: base.Verbosity,
		Execs:     append(append([]*registry.ExecDefinition(nil), base.Execs...), inc.Execs...),
		Tasks:     append(append([]*config.Task(nil), base.Tasks...), inc.Tasks...),
		Files:     append(append([]string(nil), base.Files...), inc.Files...),
	}
	if inc.NbWorkers != nil {
		out.NbWorkers = inc.NbWorkers
	}
	if inc.Verbosity != nil {
		out.Verbosity = inc.Verbosity
	}
	return out, nil
}
