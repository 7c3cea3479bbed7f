package registry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vk/hostmaint/internal/errs"
)

// maxExitCode is the largest status a process can report.
const maxExitCode = 255

var (
	ecRangeRegex   = regexp.MustCompile(`^([0-9]+)\s*-\s*([0-9]+)$`)
	ecCompareRegex = regexp.MustCompile(`^(<=|>=|==|<|>)?\s*([0-9]+)$`)
)

// ExitCodeSpec is an inclusive range of accepted exit codes.
type ExitCodeSpec struct {
	Min, Max int
	text     string
}

// DefaultExitCodes accepts only 0.
func DefaultExitCodes() ExitCodeSpec {
	return ExitCodeSpec{Min: 0, Max: 0, text: "==0"}
}

// ParseExitCodes parses "A-B" or "[op]N" with op one of == < <= > >=.
func ParseExitCodes(s string) (ExitCodeSpec, error) {
	x := strings.TrimSpace(s)
	if m := ecRangeRegex.FindStringSubmatch(x); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if a > b || a > maxExitCode {
			return ExitCodeSpec{}, errs.Configf("invalid exit code range %q", s)
		}
		return ExitCodeSpec{Min: a, Max: min(b, maxExitCode), text: x}, nil
	}
	m := ecCompareRegex.FindStringSubmatch(x)
	if m == nil {
		return ExitCodeSpec{}, errs.Configf("invalid exit code spec %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return ExitCodeSpec{}, errs.Configf("invalid exit code spec %q", s)
	}
	op := m[1]
	if op == "" {
		op = "=="
	}

	spec := ExitCodeSpec{text: op + strconv.Itoa(n)}
	switch op {
	case "==":
		spec.Min, spec.Max = n, n
	case "<":
		spec.Min, spec.Max = 0, n-1
	case "<=":
		spec.Min, spec.Max = 0, n
	case ">":
		spec.Min, spec.Max = n+1, maxExitCode
	case ">=":
		spec.Min, spec.Max = n, maxExitCode
	}
	spec.Max = min(spec.Max, maxExitCode)
	if spec.Min > spec.Max {
		return ExitCodeSpec{}, errs.Configf("exit code spec %q accepts nothing", s)
	}
	return spec, nil
}

// Accepts reports whether code falls inside the range.
func (s ExitCodeSpec) Accepts(code int) bool {
	return code >= s.Min && code <= s.Max
}

func (s ExitCodeSpec) String() string {
	if s.text != "" {
		return s.text
	}
	return fmt.Sprintf("%d-%d", s.Min, s.Max)
}
