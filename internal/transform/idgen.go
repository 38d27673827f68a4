package transform

import (
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	base36Digits      = "0123456789abcdefghijklmnopqrstuvwxyz"
	randomFragmentLen = 9
)

// GenerateID returns a best-effort unique id: nine random base-36 digits
// followed by now in milliseconds in base 36. Collisions are possible and
// not detected.
func GenerateID(now time.Time) string {
	var b [randomFragmentLen]byte
	for i := range b {
		b[i] = base36Digits[rand.IntN(len(base36Digits))] //nolint:gosec // ids are not secrets
	}
	return string(b[:]) + strconv.FormatInt(now.UnixMilli(), 36)
}

// DefaultIDGenerator is the IDGenerator used when none is configured.
var DefaultIDGenerator IDGenerator = IDGeneratorFunc(GenerateID)
