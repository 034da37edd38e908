// Package discovery turns container labels on remote Docker hosts into the
// discovered half of the desired route set.
package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"revp/internal/domain"
)

// ParseServices extracts per-port service descriptors from a container's
// label map. Only keys under the given namespace are considered. Malformed
// keys are rejected with explicit errors instead of being skipped, so a
// typo in a label shows up in the logs rather than silently unrouting a
// service. Valid groups and errors are returned together; one broken group
// does not invalidate the others.
func ParseServices(labels map[string]string, namespace string) ([]domain.ServiceDescriptor, []error) {
	prefix := namespace + "."

	groups := make(map[int]map[string]string)
	var errs []error

	for key, value := range labels {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)

		parts := strings.SplitN(rest, ".", 2)
		if len(parts) != 2 {
			errs = append(errs, fmt.Errorf("%w: %q: want %s.<port>.<property>", domain.ErrInvalidLabel, key, namespace))
			continue
		}

		port, err := strconv.Atoi(parts[0])
		if err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%w: %q: port %q is not a valid port number", domain.ErrInvalidLabel, key, parts[0]))
			continue
		}

		property := parts[1]
		switch property {
		case domain.LabelPropDomain, domain.LabelPropBackendProto, domain.LabelPropBackendPath:
		default:
			errs = append(errs, fmt.Errorf("%w: %q: unknown property %q", domain.ErrInvalidLabel, key, property))
			continue
		}

		if groups[port] == nil {
			groups[port] = make(map[string]string)
		}
		groups[port][property] = value
	}

	ports := make([]int, 0, len(groups))
	for port := range groups {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	descriptors := make([]domain.ServiceDescriptor, 0, len(groups))
	for _, port := range ports {
		group := groups[port]

		domainName, ok := group[domain.LabelPropDomain]
		if !ok || domainName == "" {
			errs = append(errs, fmt.Errorf("%w: port %d group is missing the %s property", domain.ErrInvalidLabel, port, domain.LabelPropDomain))
			continue
		}

		desc := domain.ServiceDescriptor{
			Port:         port,
			Domain:       domainName,
			BackendProto: group[domain.LabelPropBackendProto],
			BackendPath:  group[domain.LabelPropBackendPath],
		}
		if desc.BackendProto == "" {
			desc.BackendProto = domain.ProtoHTTP
		}
		if desc.BackendProto != domain.ProtoHTTP && desc.BackendProto != domain.ProtoHTTPS {
			errs = append(errs, fmt.Errorf("%w: port %d: backend protocol must be http or https, got %q", domain.ErrInvalidLabel, port, desc.BackendProto))
			continue
		}
		if desc.BackendPath == "" {
			desc.BackendPath = "/"
		}

		descriptors = append(descriptors, desc)
	}

	return descriptors, errs
}
