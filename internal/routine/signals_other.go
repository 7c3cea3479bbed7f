//go:build !unix

package routine

import (
	"strconv"
	"syscall"

	"github.com/vk/hostmaint/internal/errs"
)

func ParseSignal(s string) (syscall.Signal, error) {
	return 0, &errs.Error{Kind: errs.ErrBuiltin, Msg: "parse signal " + strconv.Quote(s), Err: ErrUnsupportedPlatform}
}

func SignalName(sig syscall.Signal) string {
	return "signal " + strconv.Itoa(int(sig))
}
