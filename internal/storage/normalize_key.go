package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeKey converts a key value scanned from a backend to the canonical
// string form used in lookup maps.
//
// Drivers return text columns as string or []byte depending on backend and
// protocol; some return numeric-looking keys as numbers. All of them collapse
// to the same trimmed string here.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
