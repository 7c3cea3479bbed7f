package backend

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Limit is a non-negative retention bound; Unlimited disables it.
type Limit uint64

// Unlimited is the "infinity" limit.
const Unlimited Limit = math.MaxUint64

func (l Limit) IsUnlimited() bool { return l == Unlimited }

// Exceeded reports whether v is over the limit.
func (l Limit) Exceeded(v uint64) bool {
	return !l.IsUnlimited() && v > uint64(l)
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "inf"
	}
	return strconv.FormatUint(uint64(l), 10)
}

// Quota bounds the number of copies and their cumulative size.
type Quota struct {
	Copies Limit
	Bytes  Limit
}

// NoQuota never triggers rotation.
var NoQuota = Quota{Copies: Unlimited, Bytes: Unlimited}

func (q Quota) String() string {
	bytes := q.Bytes.String()
	if !q.Bytes.IsUnlimited() {
		bytes = humanize.IBytes(uint64(q.Bytes))
	}
	return "copies=" + q.Copies.String() + " bytes=" + bytes
}
