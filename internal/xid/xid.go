// Package xid generates prefixed identifiers for persisted entities
// (sale-, refund-, reg-, mov-, adj-, loy-, audit-). Ids sort roughly by
// creation time because the timestamp leads the random suffix.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const suffixBytes = 8

// New returns "<prefix>-<unixnano>-<random hex>". If the random source is
// unavailable the timestamp alone still gives a usable, if weaker, id.
func New(prefix string) string {
	buf := make([]byte, suffixBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
