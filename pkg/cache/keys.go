package cache

import (
	"fmt"
	"strings"
)

const keySeparator = ":"

// BuildKey joins a namespace, an entity type and identifier segments.
// Empty segments are kept so distinct queries never collapse onto one key.
//
//	BuildKey("instance", "roles", "42")              // instance:roles:42
//	BuildKey("instance", "oauth-clients", "list", "1", "10") // instance:oauth-clients:list:1:10
func BuildKey(namespace, entityType string, ids ...string) string {
	parts := make([]string, 0, len(ids)+2)
	parts = append(parts, namespace, entityType)
	parts = append(parts, ids...)
	return strings.Join(parts, keySeparator)
}

// Keys builds keys bound to one instance namespace.
type Keys struct {
	namespace string
}

// NewKeys returns a key builder for namespace.
func NewKeys(namespace string) Keys {
	return Keys{namespace: namespace}
}

// Namespace returns the instance namespace.
func (k Keys) Namespace() string {
	return k.namespace
}

// Key formats ids with fmt.Sprint and delegates to BuildKey.
func (k Keys) Key(entityType string, ids ...any) string {
	return BuildKey(k.namespace, entityType, stringify(ids)...)
}

// Prefix returns the key prefix shared by every key under entityType and ids,
// including the trailing separator.
func (k Keys) Prefix(entityType string, ids ...any) string {
	return k.Key(entityType, ids...) + keySeparator
}

// entityOf extracts the entity type segment of a key for metric labels.
func entityOf(key string) string {
	parts := strings.SplitN(key, keySeparator, 3)
	if len(parts) < 2 {
		return "unknown"
	}
	return parts[1]
}

func stringify(ids []any) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprint(id)
	}
	return out
}
