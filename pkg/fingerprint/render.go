// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"fmt"
	"time"
)

// stringify renders scalar values not handled directly by render into a
// canonical, platform-independent string. time.Time is pinned to UTC with
// nanosecond precision so the same instant hashes identically regardless of
// the process's local timezone or the driver's monotonic-reading behavior.
func stringify(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool:
		if t {
			return "t"
		}
		return "f"
	default:
		return fmt.Sprintf("%v", t)
	}
}
