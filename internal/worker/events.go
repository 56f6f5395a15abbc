package worker

// TopicIngestTask carries one document ready for chunking and
// indexing. The HTTP layer publishes it after persisting the document
// row so uploads return immediately.
const TopicIngestTask = "ingest.task"

type IngestTaskPayload struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Text       string `json:"text"`

	CorrelationID string `json:"correlation_id"`
}
