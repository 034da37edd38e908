package domain

// Label grammar for container discovery. Keys have the form
// <namespace>.<port>.<property> where port is numeric.
const (
	// DefaultLabelNamespace is the label prefix scanned for services.
	DefaultLabelNamespace = "revp"

	// Per-port service properties.
	LabelPropDomain       = "domain"        // required
	LabelPropBackendProto = "backend-proto" // optional, defaults to http
	LabelPropBackendPath  = "backend-path"  // optional, defaults to /
)
