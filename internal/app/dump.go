package app

import (
	"fmt"
	"io"
	"math/big"

	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/registry"
	"github.com/vk/hostmaint/internal/routine"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

type dumpExec struct {
	Argv     []string          `yaml:"argv"`
	Env      map[string]string `yaml:"env,omitempty"`
	EC       string            `yaml:"ec"`
	VlStdout int               `yaml:"vl-stdout"`
	VlStderr int               `yaml:"vl-stderr"`
}

type dumpObject struct {
	Group     string     `yaml:"group,omitempty"`
	AllocSize *int64     `yaml:"alloc-size,omitempty"`
	Pipeline  []dumpExec `yaml:"pipeline"`
}

type dumpGroup struct {
	ID      string   `yaml:"id"`
	Depends []string `yaml:"depends,omitempty"`
}

type dumpTask struct {
	Type          string                 `yaml:"type"`
	Backend       string                 `yaml:"backend,omitempty"`
	BackendParams map[string]any         `yaml:"backend-param,omitempty"`
	Groups        []dumpGroup            `yaml:"object-groups,omitempty"`
	Objects       map[string]*dumpObject `yaml:"objects,omitempty"`
	Steps         []string               `yaml:"steps,omitempty"`
}

type dump struct {
	Files     []string             `yaml:"files"`
	NbWorkers int                  `yaml:"nb-workers"`
	Vl        int                  `yaml:"vl"`
	Execs     map[string]dumpExec  `yaml:"execs,omitempty"`
	Tasks     map[string]*dumpTask `yaml:"tasks,omitempty"`
}

func execDump(d *registry.ExecDefinition) dumpExec {
	return dumpExec{
		Argv:     d.Argv,
		Env:      d.Env,
		EC:       d.ExitCodes.String(),
		VlStdout: registry.VerbosityFromLevel(d.StdoutLevel),
		VlStderr: registry.VerbosityFromLevel(d.StderrLevel),
	}
}

// Dump writes the effective configuration as YAML: the merged model with
// every exec reference resolved and the command-line overrides applied.
func (a *App) Dump(w io.Writer) error {
	d := dump{
		Files:     a.model.Files,
		NbWorkers: a.runConfig.NbWorkers(),
		Vl:        a.runConfig.Verbosity(),
		Execs:     make(map[string]dumpExec, len(a.model.Execs)),
		Tasks:     make(map[string]*dumpTask, len(a.model.Tasks)),
	}
	for _, e := range a.model.Execs {
		d.Execs[e.ID] = execDump(e)
	}
	for _, t := range a.model.Tasks {
		dt, err := a.dumpTask(t)
		if err != nil {
			return fmt.Errorf("task %q: %w", t.ID, err)
		}
		d.Tasks[t.ID] = dt
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}

func (a *App) dumpTask(t *config.Task) (*dumpTask, error) {
	dt := &dumpTask{Type: string(t.Kind), Backend: t.Backend}
	if len(t.BackendParams) > 0 {
		dt.BackendParams = make(map[string]any, len(t.BackendParams))
		for k, v := range t.BackendParams {
			gv, err := ctyValueToInterface(v)
			if err != nil {
				return nil, fmt.Errorf("backend-param %s: %w", k, err)
			}
			dt.BackendParams[k] = gv
		}
	}
	for _, g := range t.Groups {
		dt.Groups = append(dt.Groups, dumpGroup{ID: g.ID, Depends: g.Depends})
	}
	if len(t.Objects) > 0 {
		dt.Objects = make(map[string]*dumpObject, len(t.Objects))
	}
	for _, o := range t.Objects {
		do := &dumpObject{Group: o.Group, AllocSize: o.AllocSize}
		for _, st := range o.Pipeline {
			def, err := a.execs.Resolve(st)
			if err != nil {
				return nil, err
			}
			do.Pipeline = append(do.Pipeline, execDump(def))
		}
		dt.Objects[o.Path] = do
	}
	for _, st := range t.Steps {
		switch st.Kind {
		case config.RoutineExec:
			def, err := a.execs.Resolve(st.Exec)
			if err != nil {
				return nil, err
			}
			dt.Steps = append(dt.Steps, "exec: "+def.String())
		case config.RoutineTaskRef:
			dt.Steps = append(dt.Steps, "task: "+st.TaskID)
		case config.RoutineBuiltin:
			desc := st.BuiltinID
			if st.BuiltinID == "sigmask" {
				if b, err := routine.NewSigmask(st.Param); err == nil {
					desc = b.String()
				}
			}
			dt.Steps = append(dt.Steps, "builtin: "+desc)
		}
	}
	return dt, nil
}

// ctyValueToInterface converts a cty.Value to a plain Go value for encoding.
func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			bf := val.AsBigFloat()
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
			f, _ := bf.Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", val.Type().FriendlyName())
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			gv, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = gv
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() || val.Type().IsSetType() {
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			gv, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", val.Type().FriendlyName())
}

// WriteModules lists the compiled-in backends and builtins.
func WriteModules(w io.Writer) error {
	out := struct {
		Backends []string `yaml:"backends"`
		Builtins []string `yaml:"builtins"`
	}{backend.NewRegistry(coreModules...).Names(), routine.Builtins()}
	return yaml.NewEncoder(w).Encode(out)
}
