package api

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strconv"

	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/models"
)

// Operation names, used in errors, logs and call counters.
const (
	OpBegin     = "beginMultipartUpload"
	OpPartURL   = "getPartUploadUrl"
	OpComplete  = "completeMultipartUpload"
	OpAbort     = "abortMultipartUpload"
	OpUploadURL = "getUploadUrl"
)

// Control plane routes.
const (
	routeBegin     = "get-multipart-upload-url/"
	routePartURL   = "get-multipart-upload-part-url/"
	routeComplete  = "complete-multipart-upload/"
	routeAbort     = "abort-multipart-upload/"
	routeUploadURL = "get-upload-url/"
)

// BeginMultipartUpload opens a multipart upload for path. The backend
// assigns the hashed object name that every later call must use.
func (c *Client) BeginMultipartUpload(ctx context.Context, creds credentials.Credentials, path, contentType string) (*models.MultipartUploadStart, error) {
	if contentType == "" {
		contentType = constants.DefaultContentType
	}

	var out models.MultipartUploadStart
	err := c.call(ctx, request{
		operation:   OpBegin,
		method:      nethttp.MethodGet,
		route:       routeBegin,
		query:       url.Values{"file_path": {path}},
		contentType: contentType,
	}, creds, &out)
	if err != nil {
		return nil, err
	}
	if out.UploadID == "" || out.HashedName == "" {
		return nil, fmt.Errorf("%s: response is missing uploadId or hashed_name", OpBegin)
	}
	return &out, nil
}

// GetPartUploadURL returns the presigned URL for exactly one part.
func (c *Client) GetPartUploadURL(ctx context.Context, creds credentials.Credentials, hashedName, uploadID string, partNumber int32) (string, error) {
	var out models.PartUploadURL
	err := c.call(ctx, request{
		operation: OpPartURL,
		method:    nethttp.MethodGet,
		route:     routePartURL,
		query: url.Values{
			"file_path":  {hashedName},
			"uploadId":   {uploadID},
			"partNumber": {strconv.Itoa(int(partNumber))},
		},
	}, creds, &out)
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("%s: response is missing url for part %d", OpPartURL, partNumber)
	}
	return out.URL, nil
}

// CompleteMultipartUpload commits parts, in order, into the final object.
func (c *Client) CompleteMultipartUpload(ctx context.Context, creds credentials.Credentials, hashedName, uploadID string, parts []models.CompletedPart) (*models.MultipartUploadResult, error) {
	var out models.MultipartUploadResult
	err := c.call(ctx, request{
		operation: OpComplete,
		method:    nethttp.MethodPost,
		route:     routeComplete,
		query: url.Values{
			"file_path": {hashedName},
			"uploadId":  {uploadID},
		},
		body: models.CompleteMultipartUploadRequest{Parts: parts},
	}, creds, &out)
	if err != nil {
		return nil, err
	}
	if out.HashedName == "" {
		out.HashedName = hashedName
	}
	return &out, nil
}

// AbortMultipartUpload discards an open upload and its stored parts.
func (c *Client) AbortMultipartUpload(ctx context.Context, creds credentials.Credentials, hashedName, uploadID string) error {
	return c.call(ctx, request{
		operation: OpAbort,
		method:    nethttp.MethodDelete,
		route:     routeAbort,
		query: url.Values{
			"file_path": {hashedName},
			"uploadId":  {uploadID},
		},
	}, creds, nil)
}

// GetUploadURL returns a presigned URL for a single-request upload of path.
func (c *Client) GetUploadURL(ctx context.Context, creds credentials.Credentials, path string) (*models.SingleUploadURL, error) {
	var out models.SingleUploadURL
	err := c.call(ctx, request{
		operation: OpUploadURL,
		method:    nethttp.MethodGet,
		route:     routeUploadURL,
		query:     url.Values{"file_path": {path}},
	}, creds, &out)
	if err != nil {
		return nil, err
	}
	if out.URL == "" || out.HashedName == "" {
		return nil, fmt.Errorf("%s: response is missing url or hashed_name", OpUploadURL)
	}
	return &out, nil
}
