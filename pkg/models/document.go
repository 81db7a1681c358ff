package models

// Document is the schema contract with the external tenancy scanner. The
// engine never writes documents; it queries them by service+operation
// metadata and embedding similarity.
type Document struct {
	ResourceType  string `json:"resource_type"`
	Service       string `json:"service"`
	Operation     string `json:"operation"`
	OCID          string `json:"ocid,omitempty"`
	CompartmentID string `json:"compartment_id,omitempty"`
	Name          string `json:"name,omitempty"`
	Findings      string `json:"findings,omitempty"`
}

// RetrievalResult is what the retrieval path hands to routing: matched
// document texts, their metadata records, and whether anything usable
// came back. Found is true iff at least one document is non-empty.
type RetrievalResult struct {
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
	Found     bool             `json:"found"`
}
