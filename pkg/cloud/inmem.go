package cloud

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryFactory is a self-contained tenancy used by tests and the
// interactive demo. Resources live in per-service tables keyed by
// compartment; mutating operations append records the same way a real
// tenancy would.
type InMemoryFactory struct {
	mu           sync.RWMutex
	tenancyOCID  string
	compartments []map[string]any
	resources    map[string]map[string][]map[string]any // service → compartment → records
	namespace    string
}

// NewInMemoryFactory seeds a small tenancy: a root, two compartments, and
// a handful of resources per service.
func NewInMemoryFactory(tenancyOCID string) *InMemoryFactory {
	f := &InMemoryFactory{
		tenancyOCID: tenancyOCID,
		namespace:   "demo-namespace",
		resources:   map[string]map[string][]map[string]any{},
	}
	devID := "ocid1.compartment.oc1..dev"
	prodID := "ocid1.compartment.oc1..prod"
	f.compartments = []map[string]any{
		{"id": devID, "name": "dev", "lifecycle_state": "ACTIVE", "compartment_id": tenancyOCID},
		{"id": prodID, "name": "prod", "lifecycle_state": "ACTIVE", "compartment_id": tenancyOCID},
	}
	f.seed(ServiceCompute, devID, map[string]any{
		"display_name": "web-1", "lifecycle_state": "RUNNING", "shape": "VM.Standard.E4.Flex",
	})
	f.seed(ServiceCompute, devID, map[string]any{
		"display_name": "web-2", "lifecycle_state": "STOPPED", "shape": "VM.Standard.E4.Flex",
	})
	f.seed(ServiceCompute, prodID, map[string]any{
		"display_name": "db-1", "lifecycle_state": "RUNNING", "shape": "VM.Standard3.Flex",
	})
	f.seed(ServiceObjectStorage, devID, map[string]any{
		"name": "assets", "namespace": f.namespace,
	})
	f.seed(ServiceBlockStorage, prodID, map[string]any{
		"display_name": "data-vol", "size_in_gbs": 256, "lifecycle_state": "AVAILABLE",
	})
	return f
}

func (f *InMemoryFactory) seed(service, compartmentID string, attrs map[string]any) {
	attrs["id"] = fmt.Sprintf("ocid1.%s.oc1..%s", service, uuid.NewString()[:8])
	attrs["compartment_id"] = compartmentID
	attrs["time_created"] = time.Now().UTC().Format(time.RFC3339)
	if f.resources[service] == nil {
		f.resources[service] = map[string][]map[string]any{}
	}
	f.resources[service][compartmentID] = append(f.resources[service][compartmentID], attrs)
}

// Get returns a client bound to the named service.
func (f *InMemoryFactory) Get(service string, _ Config) (ServiceClient, error) {
	if !ApprovedServices()[service] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return &inMemoryClient{factory: f, service: service}, nil
}

type inMemoryClient struct {
	factory *InMemoryFactory
	service string
}

// Invoke dispatches the operations the demo tenancy understands. List
// operations return []any of attribute maps; create operations return the
// new record; get_namespace returns a string.
func (c *inMemoryClient) Invoke(_ context.Context, operation string, params map[string]any) (any, error) {
	f := c.factory
	switch {
	case c.service == ServiceIdentity && operation == "list_compartments":
		f.mu.RLock()
		defer f.mu.RUnlock()
		out := make([]any, 0, len(f.compartments))
		for _, cpt := range f.compartments {
			out = append(out, cpt)
		}
		return out, nil

	case c.service == ServiceObjectStorage && operation == "get_namespace":
		return f.namespace, nil

	case strings.HasPrefix(operation, "list_"):
		return c.list(params)

	case strings.HasPrefix(operation, "create_") || strings.HasPrefix(operation, "launch_"):
		return c.create(operation, params)

	case strings.HasPrefix(operation, "delete_") || strings.HasPrefix(operation, "terminate_"):
		return c.remove(params)

	case strings.HasPrefix(operation, "stop_") || strings.HasPrefix(operation, "start_") ||
		strings.HasPrefix(operation, "update_"):
		return c.update(operation, params)

	case strings.HasPrefix(operation, "get_"):
		return c.get(params)
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownOperation, c.service, operation)
}

func (c *inMemoryClient) list(params map[string]any) (any, error) {
	f := c.factory
	f.mu.RLock()
	defer f.mu.RUnlock()
	compartmentID, _ := params["compartment_id"].(string)
	var out []any
	for cpt, records := range f.resources[c.service] {
		if compartmentID != "" && compartmentID != f.tenancyOCID && cpt != compartmentID {
			continue
		}
		for _, r := range records {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *inMemoryClient) create(operation string, params map[string]any) (any, error) {
	f := c.factory
	f.mu.Lock()
	defer f.mu.Unlock()
	compartmentID, _ := params["compartment_id"].(string)
	if compartmentID == "" {
		return nil, fmt.Errorf("create: compartment_id is required")
	}
	record := map[string]any{
		"id":              fmt.Sprintf("ocid1.%s.oc1..%s", c.service, uuid.NewString()[:8]),
		"compartment_id":  compartmentID,
		"lifecycle_state": "ACTIVE",
		"time_created":    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range params {
		if k == "compartment_id" {
			continue
		}
		record[k] = v
	}
	if name, ok := params["name"]; ok {
		record["name"] = name
	}
	if strings.Contains(operation, "instance") {
		record["display_name"] = params["display_name"]
		record["lifecycle_state"] = "PROVISIONING"
	}
	if f.resources[c.service] == nil {
		f.resources[c.service] = map[string][]map[string]any{}
	}
	f.resources[c.service][compartmentID] = append(f.resources[c.service][compartmentID], record)
	return record, nil
}

func (c *inMemoryClient) remove(params map[string]any) (any, error) {
	f := c.factory
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := params["id"].(string)
	if id == "" {
		id, _ = params["instance_id"].(string)
	}
	for cpt, records := range f.resources[c.service] {
		for i, r := range records {
			if r["id"] == id {
				f.resources[c.service][cpt] = append(records[:i], records[i+1:]...)
				return map[string]any{"id": id, "lifecycle_state": "TERMINATED"}, nil
			}
		}
	}
	return nil, fmt.Errorf("resource %q not found", id)
}

func (c *inMemoryClient) update(operation string, params map[string]any) (any, error) {
	f := c.factory
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := params["id"].(string)
	if id == "" {
		id, _ = params["instance_id"].(string)
	}
	for _, records := range f.resources[c.service] {
		for _, r := range records {
			if r["id"] == id {
				switch {
				case strings.HasPrefix(operation, "stop_"):
					r["lifecycle_state"] = "STOPPED"
				case strings.HasPrefix(operation, "start_"):
					r["lifecycle_state"] = "RUNNING"
				default:
					for k, v := range params {
						if k != "id" && k != "instance_id" {
							r[k] = v
						}
					}
				}
				return r, nil
			}
		}
	}
	return nil, fmt.Errorf("resource %q not found", id)
}

func (c *inMemoryClient) get(params map[string]any) (any, error) {
	f := c.factory
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, _ := params["id"].(string)
	for _, records := range f.resources[c.service] {
		for _, r := range records {
			if r["id"] == id {
				return r, nil
			}
		}
	}
	return nil, fmt.Errorf("resource %q not found", id)
}
