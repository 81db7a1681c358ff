package presenter

// columnPriority is the fixed display order for tabular results. Columns
// appear in this order when any row carries the field; everything else
// follows alphabetically up to the column cap.
var columnPriority = []string{
	"display_name",
	"name",
	"id",
	"lifecycle_state",
	"state",
	"shape",
	"size_in_gbs",
	"region",
	"availability_domain",
	"compartment_id",
	"time_created",
	"email",
	"protocol",
	"port",
	"public_ips",
	"has_public_ip",
	"public_ip",
}

// droppedColumns are SDK bookkeeping fields that never reach the user.
var droppedColumns = map[string]bool{
	"attribute_map": true,
	"swagger_types": true,
}

const maxColumns = 10
