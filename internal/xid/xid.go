package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed, time-sortable identifier. The uuid tail keeps ids
// unique even when two are minted in the same nanosecond.
func New(prefix string) string {
	tail := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), tail)
}
