package redisstore

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "zg"

func zoneKey(id string) string { return prefix + ":zone:" + idPart(id) }

func allZonesKey() string { return prefix + ":zones" }

func warehouseZonesKey(warehouseID string) string {
	return prefix + ":wh:" + idPart(warehouseID) + ":zones"
}

func cellKey(res int, cell string) string {
	return fmt.Sprintf("%s:cell:%d:%s", prefix, res, sanitize(cell))
}

func warehouseKey(id string) string { return prefix + ":warehouse:" + idPart(id) }

// sorted set of warehouse ids scored by creation time
func warehousesKey() string { return prefix + ":warehouses" }

func gridLeaseKey(warehouseID string) string { return prefix + ":lock:grid:" + idPart(warehouseID) }

// idPart keeps the id readable in keys and suffixes the hash of the raw id,
// so ids that sanitize alike still get distinct keys.
func idPart(id string) string {
	return fmt.Sprintf("%s:h=%016x", sanitize(id), xxhash.Sum64String(id))
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
