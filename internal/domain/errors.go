package domain

import "errors"

// Domain errors represent business-level errors that can occur in the system.
// These errors are used across layers to communicate specific failure conditions.
var (
	// Route errors
	ErrRouteNotFound = errors.New("route not found")
	ErrRouteExists   = errors.New("route already exists")
	ErrInvalidRoute  = errors.New("invalid route configuration")
	ErrDuplicateHost = errors.New("host already claimed by another route")
	ErrForeignRoute  = errors.New("route is not owned by this engine")

	// Proxy collection errors
	ErrConflict = errors.New("version token mismatch, collection was modified concurrently")

	// Discovery errors
	ErrInvalidLabel = errors.New("invalid service label group")
	ErrHostNotFound = errors.New("host not found")

	// Config errors
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrConfigLoadFailed = errors.New("failed to load configuration")
)
