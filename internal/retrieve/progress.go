package retrieve

// ProgressKind identifies the boundary a progress event was emitted at.
type ProgressKind string

const (
	ProgressEntityStarted ProgressKind = "entity_started"
	ProgressPageFetched   ProgressKind = "page_fetched"
	ProgressEntityDone    ProgressKind = "entity_done"
	ProgressEntityFailed  ProgressKind = "entity_failed"
)

// ProgressEvent reports one stream/page/entity boundary during a run.
// Events are delivered to the configured callback by a single consumer
// goroutine, never concurrently.
type ProgressEvent struct {
	RunID       string
	Kind        ProgressKind
	EntityID    string
	EntityLabel string

	// DocType is the document-type stream the event belongs to, ""
	// for unfiltered streams and entity-level events.
	DocType string

	// PageRows is the number of rows in the page for page events.
	PageRows int

	// EntityRows is the entity's accumulated row count for entity-done
	// events.
	EntityRows int
}
