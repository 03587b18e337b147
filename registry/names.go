package registry

import "strings"

// Separator of the provider id and the local tool name.
const Separator = "__"

// NamespacedName returns providerID__localName
func NamespacedName(providerID, localName string) string {
	return providerID + Separator + localName
}

// SplitName returns the provider id and the local name.
// The name is split on the first separator.
func SplitName(name string) (string, string, bool) {
	providerID, localName, ok := strings.Cut(name, Separator)
	if !ok || providerID == "" || localName == "" {
		return "", "", false
	}
	return providerID, localName, true
}
