package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber builds a human readable order reference. The millisecond
// fragment keeps numbers roughly sortable within a session, the random
// suffix makes collisions vanishingly rare. Callers still retry on a
// unique violation.
func NewOrderNumber(now time.Time) string {
	millis := now.UnixMilli() % 1_000_000
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("ORD-%06d-%s", millis, raw[:8])
}
