// Package xid generates prefixed unique ids for audit log entries.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// New returns an id of the form <prefix>-<unixnano>-<random hex>. The random
// suffix is omitted when the entropy source fails; the timestamp alone still
// keeps ids unique enough for log entries.
func New(prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(time.Now().UnixNano(), 10))

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err == nil {
		b.WriteByte('-')
		b.WriteString(hex.EncodeToString(suffix))
	}
	return b.String()
}
