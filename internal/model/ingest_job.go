package model

// IngestJob is the queue payload that asks the worker to index a stored PDF.
type IngestJob struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	StorageKey string `json:"storage_key"`
}

// IngestOutcome reports how an ingestion attempt left the document.
type IngestOutcome struct {
	DocumentID   string         `json:"document_id"`
	Status       DocumentStatus `json:"status"`
	TotalPages   int            `json:"total_pages"`
	TotalChunks  int            `json:"total_chunks"`
	ErrorMessage string         `json:"error_message,omitempty"`
}
