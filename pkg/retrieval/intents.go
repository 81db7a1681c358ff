package retrieval

import (
	"sort"
	"strings"
)

// intentLabels is the closed label set the intent LM may choose from. Each
// label maps a family of phrasings to the exact metadata filter that
// narrows the vector search. Labels that cover several operations produce
// a disjunction filter.
var intentLabels = map[string]MetadataFilter{
	"instances":      {Service: "compute", Operations: []string{"list_instances"}},
	"buckets":        {Service: "objectstorage", Operations: []string{"list_buckets"}},
	"public_buckets": {Service: "objectstorage", Operations: []string{"list_buckets", "get_bucket"}},
	"volumes":        {Service: "blockstorage", Operations: []string{"list_volumes"}},
	"vcns":           {Service: "virtualnetwork", Operations: []string{"list_vcns"}},
	"subnets":        {Service: "virtualnetwork", Operations: []string{"list_subnets"}},
	"load_balancers": {Service: "loadbalancer", Operations: []string{"list_load_balancers"}},
	"compartments":   {Service: "identity", Operations: []string{"list_compartments"}},
	"users":          {Service: "identity", Operations: []string{"list_users"}},
	"databases":      {Service: "database", Operations: []string{"list_db_systems"}},
}

// labelNames returns the sorted label set for the intent prompt.
func labelNames() []string {
	names := make([]string, 0, len(intentLabels))
	for name := range intentLabels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookupLabel resolves LM output to a filter. The model is told to answer
// with one label or "none"; anything unparseable counts as no match.
func lookupLabel(answer string) (*MetadataFilter, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(answer))
	cleaned = strings.Trim(cleaned, "\"'`.")
	if cleaned == "" || cleaned == "none" {
		return nil, false
	}
	if f, ok := intentLabels[cleaned]; ok {
		return &f, true
	}
	// Tolerate answers that wrap the label in a sentence.
	for name, f := range intentLabels {
		if strings.Contains(cleaned, name) {
			filter := f
			return &filter, true
		}
	}
	return nil, false
}
