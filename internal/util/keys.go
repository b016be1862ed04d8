package util

import "strings"

// StorageKey namespaces a logical cache key for the durable mirror:
// <prefix>:<ns>:<key>.
func StorageKey(prefix, ns, key string) string {
	return prefix + ":" + ns + ":" + key
}

// StoragePrefix is the shared prefix of every StorageKey under ns.
func StoragePrefix(prefix, ns string) string {
	return prefix + ":" + ns + ":"
}

// LogicalKey reverses StorageKey. ok is false for keys outside the namespace.
func LogicalKey(prefix, ns, storageKey string) (string, bool) {
	return strings.CutPrefix(storageKey, StoragePrefix(prefix, ns))
}
