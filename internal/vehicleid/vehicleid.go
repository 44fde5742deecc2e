// Package vehicleid normalizes vehicle codes so service and usage records
// compare as equal strings.
package vehicleid

import "strings"

// Default prefixes used by the two exports. Service sheets write "SAO-001"
// while usage sheets write "SAO001".
const (
	ServicePrefix = "SAO-"
	UsagePrefix   = "SAO"
)

// Normalizer strips a fixed, case-sensitive prefix from raw identifiers.
type Normalizer struct {
	Prefix string
}

// Services returns the normalizer for service records.
func Services() Normalizer { return Normalizer{Prefix: ServicePrefix} }

// Usages returns the normalizer for usage records.
func Usages() Normalizer { return Normalizer{Prefix: UsagePrefix} }

// Normalize removes the first occurrence of the prefix. Identifiers that do not
// contain the prefix are returned unchanged, as is everything when the prefix
// is empty.
func (n Normalizer) Normalize(raw string) string {
	if n.Prefix == "" {
		return raw
	}
	return strings.Replace(raw, n.Prefix, "", 1)
}
