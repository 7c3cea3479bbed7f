package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ParamReader decodes backend parameters. Errors are collected and reported
// together by Err, which also rejects parameters nothing asked for.
type ParamReader struct {
	backend string
	params  config.Params
	seen    map[string]bool
	errs    []error
}

// NewParamReader returns a reader over params of the named backend.
func NewParamReader(backend string, params config.Params) *ParamReader {
	return &ParamReader{backend: backend, params: params, seen: make(map[string]bool)}
}

func (r *ParamReader) get(name string) (cty.Value, bool) {
	r.seen[name] = true
	v, ok := r.params[name]
	if !ok || v.IsNull() {
		return cty.NilVal, false
	}
	return v, true
}

func (r *ParamReader) fail(name, format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf("%s: %s", name, fmt.Sprintf(format, args...)))
}

func (r *ParamReader) str(name string) (string, bool) {
	v, ok := r.get(name)
	if !ok {
		return "", false
	}
	sv, err := convert.Convert(v, cty.String)
	if err != nil || !sv.IsKnown() {
		r.fail(name, "expected a string")
		return "", false
	}
	return sv.AsString(), true
}

// String returns the parameter or def when unset.
func (r *ParamReader) String(name, def string) string {
	if s, ok := r.str(name); ok {
		return s
	}
	return def
}

// Required returns a string parameter that must be set and non-empty.
func (r *ParamReader) Required(name string) string {
	s, ok := r.str(name)
	if ok && s != "" {
		return s
	}
	if v, present := r.params[name]; ok || !present || v.IsNull() {
		r.fail(name, "required")
	}
	return ""
}

// Bool accepts booleans and the strings "true"/"false".
func (r *ParamReader) Bool(name string, def bool) bool {
	v, ok := r.get(name)
	if !ok {
		return def
	}
	bv, err := convert.Convert(v, cty.Bool)
	if err != nil {
		r.fail(name, "expected a boolean")
		return def
	}
	return bv.True()
}

// Size accepts a non-negative integer or a humanized string such as "10 GiB".
func (r *ParamReader) Size(name string, def uint64) uint64 {
	v, ok := r.get(name)
	if !ok {
		return def
	}
	n, err := sizeValue(v)
	if err != nil {
		r.fail(name, "%v", err)
		return def
	}
	return n
}

// Limit is Size that also accepts "inf", "infinity" or "unlimited".
// Unset limits are Unlimited.
func (r *ParamReader) Limit(name string) Limit {
	v, ok := r.get(name)
	if !ok {
		return Unlimited
	}
	if v.Type() == cty.String {
		switch strings.ToLower(strings.TrimSpace(v.AsString())) {
		case "inf", "infinity", "unlimited":
			return Unlimited
		}
	}
	n, err := sizeValue(v)
	if err != nil {
		r.fail(name, "%v", err)
		return Unlimited
	}
	return Limit(n)
}

// Quota reads the nb-copy-limit and root-size-limit parameters.
func (r *ParamReader) Quota() Quota {
	return Quota{
		Copies: r.Limit("nb-copy-limit"),
		Bytes:  r.Limit("root-size-limit"),
	}
}

// Mode parses an octal permission such as "750". Numbers are read as their
// decimal digits, so 750 and "750" are the same mode.
func (r *ParamReader) Mode(name string, def fs.FileMode) fs.FileMode {
	s, ok := r.str(name)
	if !ok {
		return def
	}
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil || m > 0o7777 {
		r.fail(name, "invalid octal mode %q", s)
		return def
	}
	return fs.FileMode(m)
}

// Err reports every decoding failure and every parameter that was never read.
func (r *ParamReader) Err() error {
	errList := slices.Clone(r.errs)
	var unknown []string
	for name := range r.params {
		if !r.seen[name] {
			unknown = append(unknown, name)
		}
	}
	slices.Sort(unknown)
	for _, name := range unknown {
		errList = append(errList, fmt.Errorf("%s: unknown parameter", name))
	}
	if len(errList) == 0 {
		return nil
	}
	return errs.Configf("%s backend-param: %v", r.backend, errors.Join(errList...))
}

func sizeValue(v cty.Value) (uint64, error) {
	switch v.Type() {
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.Sign() < 0 || !bf.IsInt() {
			return 0, fmt.Errorf("expected a non-negative integer")
		}
		n, acc := bf.Uint64()
		if acc != big.Exact {
			return 0, fmt.Errorf("value out of range")
		}
		return n, nil
	case cty.String:
		n, err := humanize.ParseBytes(v.AsString())
		if err != nil {
			return 0, fmt.Errorf("invalid size %q", v.AsString())
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected a size")
}
