package planner

import "github.com/potto-labs/potto/pkg/cloud"

// planTemplate is one compile-time entry of the fast path: a recognized
// (resource, action) pair maps straight to a service call, no LM involved.
type planTemplate struct {
	method        string
	service       string
	defaultParams map[string]any
}

type templateKey struct {
	resource string
	action   string
}

// templates covers the read-only queries the intent analyzer recognizes.
// "list" and "get" share a method; get narrows with filters applied in code.
var templates = map[templateKey]planTemplate{
	{"instance", "list"}:      {"list_instances", cloud.ServiceCompute, nil},
	{"instance", "get"}:       {"list_instances", cloud.ServiceCompute, nil},
	{"bucket", "list"}:        {"list_buckets", cloud.ServiceObjectStorage, nil},
	{"bucket", "get"}:         {"list_buckets", cloud.ServiceObjectStorage, nil},
	{"volume", "list"}:        {"list_volumes", cloud.ServiceBlockStorage, nil},
	{"volume", "get"}:         {"list_volumes", cloud.ServiceBlockStorage, nil},
	{"vcn", "list"}:           {"list_vcns", cloud.ServiceVirtualNet, nil},
	{"vcn", "get"}:            {"list_vcns", cloud.ServiceVirtualNet, nil},
	{"subnet", "list"}:        {"list_subnets", cloud.ServiceVirtualNet, nil},
	{"subnet", "get"}:         {"list_subnets", cloud.ServiceVirtualNet, nil},
	{"load_balancer", "list"}: {"list_load_balancers", cloud.ServiceLoadBalancer, nil},
	{"load_balancer", "get"}:  {"list_load_balancers", cloud.ServiceLoadBalancer, nil},
	{"compartment", "list"}:   {"list_compartments", cloud.ServiceIdentity, nil},
	{"user", "list"}:          {"list_users", cloud.ServiceIdentity, nil},
	{"database", "list"}:      {"list_db_systems", cloud.ServiceDatabase, nil},
	{"database", "get"}:       {"list_db_systems", cloud.ServiceDatabase, nil},
}

// requiredParams declares, per destructive action, which parameters must be
// present before execution. The table is authoritative: for actions listed
// here the missing set is computed from it, never taken from the LM.
var requiredParams = map[string][]string{
	"create_instance":      {"compartment_id", "shape", "image_id", "subnet_id"},
	"launch_instance":      {"compartment_id", "shape", "image_id", "subnet_id"},
	"create_bucket":        {"compartment_id", "name"},
	"create_volume":        {"compartment_id", "size_in_gbs"},
	"create_load_balancer": {"compartment_id", "shape_name", "subnet_ids"},
	"create_vcn":           {"compartment_id", "cidr_block"},
	"create_subnet":        {"compartment_id", "vcn_id", "cidr_block"},

	"delete_instance":      {"instance_id"},
	"terminate_instance":   {"instance_id"},
	"stop_instance":        {"instance_id"},
	"start_instance":       {"instance_id"},
	"update_instance":      {"instance_id"},
	"delete_bucket":        {"name"},
	"update_bucket":        {"name"},
	"delete_volume":        {"volume_id"},
	"update_volume":        {"volume_id"},
	"delete_vcn":           {"vcn_id"},
	"delete_subnet":        {"subnet_id"},
	"delete_load_balancer": {"load_balancer_id"},
	"update_load_balancer": {"load_balancer_id"},
}

// destructivePrefixes classify actions the table does not enumerate.
var destructivePrefixes = []string{
	"create_", "delete_", "launch_", "terminate_", "update_", "stop_", "start_",
}
