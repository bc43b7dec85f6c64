package models

import "encoding/json"

// SubmitPipelineRequest starts a pipeline run over an uploaded input file.
type SubmitPipelineRequest struct {
	InputFile string `json:"input_file"`
	Revision  string `json:"revision"`
}

// SubmitPipelineResponse identifies the started run.
type SubmitPipelineResponse struct {
	HashID string `json:"hash_id"`
}

// ClassifyRequest is the body of classify-small.
type ClassifyRequest struct {
	Sequence string `json:"sequence"`
}

// ReportListRequest is the body of get-runs.
type ReportListRequest struct {
	SearchString string `json:"search_string"`
}

// ReportDataRequest is the body of get-run-data.
type ReportDataRequest struct {
	Name string `json:"name"`
}

// DownloadRequest is the body of download-file.
type DownloadRequest struct {
	HashID string `json:"hashId"`
}

// DownloadResponse carries the presigned URL of a result file.
type DownloadResponse struct {
	PresignedURL string `json:"presignedUrl"`
}

// Query states reported by the status route.
const (
	QueryQueued    = "QUEUED"
	QueryRunning   = "RUNNING"
	QuerySucceeded = "SUCCEEDED"
	QueryFailed    = "FAILED"
	QueryCancelled = "CANCELLED"
)

// QueryStart is returned by query-athena.
type QueryStart struct {
	QueryID string `json:"queryId"`
}

// QueryStatusRequest is the body of status.
type QueryStatusRequest struct {
	QueryID string `json:"queryId"`
}

// QueryResultsRequest is the body of get-athena-response.
type QueryResultsRequest struct {
	QueryID    string `json:"queryId"`
	PageNumber int    `json:"page_number"`
}

// QueryResults wraps the result rows of a finished query. Rows are passed
// through undecoded since their shape depends on the query.
type QueryResults struct {
	Results json.RawMessage `json:"results"`
}
