package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/models"
)

// Operation names for pipeline and report calls.
const (
	OpSubmitPipeline = "submitPipeline"
	OpClassify       = "classifySmall"
	OpReportList     = "getReportList"
	OpReportData     = "getReportData"
	OpDownload       = "downloadFile"
	OpQueryStart     = "queryAthena"
	OpQueryStatus    = "queryStatus"
	OpQueryResults   = "queryResults"
)

// SubmitPipeline starts a pipeline run over an uploaded file (its hashed name).
func (c *Client) SubmitPipeline(ctx context.Context, creds credentials.Credentials, inputFile, revision string) (*models.SubmitPipelineResponse, error) {
	if revision == "" {
		revision = c.config.PipelineRevision
	}
	var out models.SubmitPipelineResponse
	err := c.call(ctx, request{
		operation: OpSubmitPipeline,
		method:    nethttp.MethodPost,
		route:     "submit-pipeline",
		body:      models.SubmitPipelineRequest{InputFile: inputFile, Revision: revision},
	}, creds, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClassifySmall classifies a single sequence. The response is returned as-is.
func (c *Client) ClassifySmall(ctx context.Context, creds credentials.Credentials, sequence string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, request{
		operation: OpClassify,
		method:    nethttp.MethodPost,
		route:     "classify-small",
		body:      models.ClassifyRequest{Sequence: sequence},
	}, creds, &out)
	return out, err
}

// GetReportList lists pipeline runs matching search.
func (c *Client) GetReportList(ctx context.Context, creds credentials.Credentials, search string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, request{
		operation: OpReportList,
		method:    nethttp.MethodPost,
		route:     "get-runs",
		body:      models.ReportListRequest{SearchString: search},
	}, creds, &out)
	return out, err
}

// GetReportData returns the data of one run.
func (c *Client) GetReportData(ctx context.Context, creds credentials.Credentials, name string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, request{
		operation: OpReportData,
		method:    nethttp.MethodPost,
		route:     "get-run-data",
		body:      models.ReportDataRequest{Name: name},
	}, creds, &out)
	return out, err
}

// GetDownloadURL returns a presigned URL for the result file of a run.
func (c *Client) GetDownloadURL(ctx context.Context, creds credentials.Credentials, hashID string) (string, error) {
	var out models.DownloadResponse
	err := c.call(ctx, request{
		operation: OpDownload,
		method:    nethttp.MethodPost,
		route:     "download-file",
		body:      models.DownloadRequest{HashID: hashID},
	}, creds, &out)
	if err != nil {
		return "", err
	}
	if out.PresignedURL == "" {
		return "", fmt.Errorf("%s: response is missing presignedUrl", OpDownload)
	}
	return out.PresignedURL, nil
}

// QueryAthena starts the background query, polls its status every interval
// while it is queued or running, and returns the first page of results.
func (c *Client) QueryAthena(ctx context.Context, creds credentials.Credentials, interval time.Duration) (json.RawMessage, error) {
	var start models.QueryStart
	err := c.call(ctx, request{
		operation: OpQueryStart,
		method:    nethttp.MethodGet,
		route:     "query-athena",
	}, creds, &start)
	if err != nil {
		return nil, err
	}
	if start.QueryID == "" {
		return nil, fmt.Errorf("%s: response is missing queryId", OpQueryStart)
	}
	return c.PollQuery(ctx, creds, start.QueryID, interval)
}

// PollQuery waits for queryID to leave the queued/running states.
func (c *Client) PollQuery(ctx context.Context, creds credentials.Credentials, queryID string, interval time.Duration) (json.RawMessage, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.QueryStatus(ctx, creds, queryID)
		if err != nil {
			return nil, err
		}
		c.logger.Debug().Str("query_id", queryID).Str("status", status).Msg("query status")

		switch status {
		case models.QueryQueued, models.QueryRunning:
		case models.QuerySucceeded:
			return c.QueryResults(ctx, creds, queryID, 1)
		case models.QueryCancelled:
			return nil, ErrQueryCancelled
		case models.QueryFailed:
			return nil, fmt.Errorf("%w: %s", ErrQueryFailed, queryID)
		default:
			return nil, fmt.Errorf("unexpected query status %q", status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// QueryStatus returns the state of a background query. The route answers
// with a bare JSON string; an object with a "status" field is accepted too.
func (c *Client) QueryStatus(ctx context.Context, creds credentials.Credentials, queryID string) (string, error) {
	var raw json.RawMessage
	err := c.call(ctx, request{
		operation: OpQueryStatus,
		method:    nethttp.MethodPost,
		route:     "status",
		body:      models.QueryStatusRequest{QueryID: queryID},
	}, creds, &raw)
	if err != nil {
		return "", err
	}

	raw = bytes.TrimSpace(raw)
	var status string
	if len(raw) > 0 && raw[0] == '{' {
		var obj struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("failed to decode query status: %w", err)
		}
		status = obj.Status
	} else if err := json.Unmarshal(raw, &status); err != nil {
		return "", fmt.Errorf("failed to decode query status: %w", err)
	}
	return strings.ToUpper(status), nil
}

// QueryResults fetches one page of results of a finished query.
func (c *Client) QueryResults(ctx context.Context, creds credentials.Credentials, queryID string, page int) (json.RawMessage, error) {
	var out models.QueryResults
	err := c.call(ctx, request{
		operation: OpQueryResults,
		method:    nethttp.MethodPost,
		route:     "get-athena-response",
		body:      models.QueryResultsRequest{QueryID: queryID, PageNumber: page},
	}, creds, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}
