package domain

// ContainerInfo is the minimal view of a container the discovery scanner
// needs: identity plus the label map.
type ContainerInfo struct {
	ID     string
	Name   string
	Labels map[string]string
}

// ShortID returns the 12-character container ID used in route IDs.
func (c ContainerInfo) ShortID() string {
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// ServiceDescriptor is one discovered service on a container: a single
// port-group of labels that carried the required domain property. A
// container exposing several labelled ports yields several independent
// descriptors.
type ServiceDescriptor struct {
	Port         int
	Domain       string
	BackendProto string // "http" or "https", defaults to http
	BackendPath  string // defaults to "/"
}
