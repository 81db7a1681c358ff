// Package cloud defines the capability contracts the engine depends on to
// reach a cloud tenancy: a client factory keyed by service name, a
// credentials-to-config build chain, and the attribute-map conversion that
// keeps SDK objects out of the rest of the pipeline. An in-memory
// implementation backs tests and the interactive demo; production embeds a
// real SDK behind the same interfaces.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Canonical service names the engine is allowed to request. The verifier
// rejects programs that reference anything else.
const (
	ServiceCompute       = "compute"
	ServiceBlockStorage  = "blockstorage"
	ServiceVirtualNet    = "virtualnetwork"
	ServiceObjectStorage = "objectstorage"
	ServiceLoadBalancer  = "loadbalancer"
	ServiceIdentity      = "identity"
	ServiceDatabase      = "database"
)

// ApprovedServices returns the canonical service-name set.
func ApprovedServices() map[string]bool {
	return map[string]bool{
		ServiceCompute:       true,
		ServiceBlockStorage:  true,
		ServiceVirtualNet:    true,
		ServiceObjectStorage: true,
		ServiceLoadBalancer:  true,
		ServiceIdentity:      true,
		ServiceDatabase:      true,
	}
}

var (
	// ErrMissingCredentials means no usable key material was supplied.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrUnknownService means a program asked for a service outside the
	// approved set.
	ErrUnknownService = errors.New("unknown service")
	// ErrUnknownOperation means a client does not implement the requested
	// operation.
	ErrUnknownOperation = errors.New("unknown operation")
)

// Credentials is the raw blob supplied at turn entry. Key material may be
// a file path or inline PEM content; inline wins when both are present.
type Credentials struct {
	TenancyOCID string `json:"tenancy_ocid"`
	UserOCID    string `json:"user_ocid"`
	Fingerprint string `json:"fingerprint"`
	Region      string `json:"region"`
	KeyFile     string `json:"key_file,omitempty"`
	KeyContent  string `json:"key_content,omitempty"`
}

// Config is the validated configuration handed to service clients.
type Config struct {
	TenancyOCID string
	UserOCID    string
	Fingerprint string
	Region      string
	KeyContent  string
}

// BuildConfig validates credentials and resolves key material. It accepts
// either inline key content or a key-file path.
func BuildConfig(creds Credentials) (Config, error) {
	cfg := Config{
		TenancyOCID: creds.TenancyOCID,
		UserOCID:    creds.UserOCID,
		Fingerprint: creds.Fingerprint,
		Region:      creds.Region,
	}
	switch {
	case strings.TrimSpace(creds.KeyContent) != "":
		cfg.KeyContent = creds.KeyContent
	case creds.KeyFile != "":
		data, err := os.ReadFile(creds.KeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("reading key file: %w", err)
		}
		cfg.KeyContent = string(data)
	default:
		return Config{}, fmt.Errorf("%w: no key file or key content", ErrMissingCredentials)
	}
	if cfg.TenancyOCID == "" {
		return Config{}, fmt.Errorf("%w: tenancy OCID is required", ErrMissingCredentials)
	}
	if cfg.Region == "" {
		return Config{}, fmt.Errorf("%w: region is required", ErrMissingCredentials)
	}
	return cfg, nil
}

// ServiceClient is one service's call surface. Results are opaque records;
// the executor converts them to attribute maps before anything else sees
// them.
type ServiceClient interface {
	// Invoke performs one named operation. List operations return []any;
	// singular operations return the created/fetched record.
	Invoke(ctx context.Context, operation string, params map[string]any) (any, error)
}

// ClientFactory hands out service clients. Implementations may cache
// clients per service.
type ClientFactory interface {
	Get(service string, cfg Config) (ServiceClient, error)
}

// ListCompartments enumerates the tenancy root plus every active
// compartment, already converted to attribute maps. Used by the executor
// for all-compartment fan-out and by the supervisor's compartment pick.
func ListCompartments(ctx context.Context, factory ClientFactory, cfg Config) ([]map[string]any, error) {
	identity, err := factory.Get(ServiceIdentity, cfg)
	if err != nil {
		return nil, fmt.Errorf("identity client: %w", err)
	}
	raw, err := identity.Invoke(ctx, "list_compartments", map[string]any{
		"compartment_id":  cfg.TenancyOCID,
		"lifecycle_state": "ACTIVE",
	})
	if err != nil {
		return nil, fmt.Errorf("list_compartments: %w", err)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("list_compartments: unexpected result shape %T", raw)
	}
	out := make([]map[string]any, 0, len(items)+1)
	out = append(out, map[string]any{
		"id":   cfg.TenancyOCID,
		"name": "root (tenancy)",
	})
	for _, it := range items {
		m, ok := ToMap(it)
		if !ok {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
