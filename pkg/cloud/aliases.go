package cloud

import "strings"

// serviceAliases maps the service names language models like to emit to
// the canonical client names. Carried verbatim; the verifier only accepts
// canonical names.
var serviceAliases = map[string]string{
	"core":            ServiceCompute,
	"block_storage":   ServiceBlockStorage,
	"virtual_network": ServiceVirtualNet,
	"object_storage":  ServiceObjectStorage,
	"load_balancer":   ServiceLoadBalancer,
}

// CanonicalService rewrites known aliases to the approved client name.
// Unknown names pass through unchanged for the verifier to reject.
func CanonicalService(name string) string {
	cleaned := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := serviceAliases[cleaned]; ok {
		return canonical
	}
	return cleaned
}
