package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot decodes every top-level construct a configuration file may hold.
type fileRoot struct {
	NbWorkers *int         `hcl:"nb-workers,optional"`
	Verbosity *int         `hcl:"vl,optional"`
	Include   []string     `hcl:"include,optional"`
	Execs     []*execBlock `hcl:"exec,block"`
	Tasks     []*taskBlock `hcl:"task,block"`
}

type execBlock struct {
	ID       string            `hcl:"id,label"`
	Argv     []string          `hcl:"argv"`
	Env      map[string]string `hcl:"env,optional"`
	EC       *string           `hcl:"ec,optional"`
	VlStdout *int              `hcl:"vl-stdout,optional"`
	VlStderr *int              `hcl:"vl-stderr,optional"`
}

type taskBlock struct {
	Kind         string         `hcl:"type,label"`
	ID           string         `hcl:"id,label"`
	Backend      *string        `hcl:"backend,optional"`
	BackendParam *paramBlock    `hcl:"backend-param,block"`
	Groups       []*groupBlock  `hcl:"object-group,block"`
	Objects      []*objectBlock `hcl:"object,block"`
	Steps        []*stepBlock   `hcl:"step,block"`
}

type paramBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type groupBlock struct {
	ID      string   `hcl:"id,label"`
	Depends []string `hcl:"depends,optional"`
}

type objectBlock struct {
	Path      string       `hcl:"path,label"`
	Group     *string      `hcl:"group,optional"`
	AllocSize *int64       `hcl:"alloc-size,optional"`
	Steps     []*stepBlock `hcl:"step,block"`
}

// stepBlock is shared by pipelines and routines; which attributes are
// meaningful depends on the label.
type stepBlock struct {
	Kind      string            `hcl:"type,label"`
	ExecID    *string           `hcl:"exec-id,optional"`
	Argv      []string          `hcl:"argv,optional"`
	Env       map[string]string `hcl:"env,optional"`
	EC        *string           `hcl:"ec,optional"`
	VlStdout  *int              `hcl:"vl-stdout,optional"`
	VlStderr  *int              `hcl:"vl-stderr,optional"`
	TaskID    *string           `hcl:"task-id,optional"`
	BuiltinID *string           `hcl:"builtin-id,optional"`
	Param     hcl.Expression    `hcl:"param,optional"`
	DefRange  hcl.Range         `hcl:",def_range"`
}
