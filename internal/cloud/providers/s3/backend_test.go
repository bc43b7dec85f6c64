package s3

import (
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemab/aab/internal/models"
)

// fakeS3 answers the few path-style S3 calls the backend makes.
type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
	listed   string // XML body for ListObjectsV2
}

func (f *fakeS3) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/xml")
	switch {
	case r.Method == nethttp.MethodPost && q.Has("uploads"):
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<InitiateMultipartUploadResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Bucket>uploads</Bucket><Key>k.csv</Key><UploadId>upload-42</UploadId></InitiateMultipartUploadResult>`)
	case r.Method == nethttp.MethodPost && q.Has("uploadId"):
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<CompleteMultipartUploadResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Location>http://uploads/k.csv</Location><Bucket>uploads</Bucket><Key>k.csv</Key><ETag>"final"</ETag></CompleteMultipartUploadResult>`)
	case r.Method == nethttp.MethodDelete:
		w.WriteHeader(nethttp.StatusNoContent)
	case r.Method == nethttp.MethodGet && q.Get("list-type") == "2":
		_, _ = io.WriteString(w, f.listed)
	default:
		w.WriteHeader(nethttp.StatusNotImplemented)
	}
}

func (f *fakeS3) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestBackend(t *testing.T, endpoint string) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		Bucket:          "uploads",
		ResultsBucket:   "results",
		Region:          "eu-west-2",
		Endpoint:        endpoint,
		PresignExpiry:   time.Hour,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	return b
}

func TestNewBackendRequiresBucket(t *testing.T) {
	_, err := NewBackend(context.Background(), Options{Region: "eu-west-2"})
	require.Error(t, err)
}

func TestPresignUploadPart(t *testing.T) {
	b := newTestBackend(t, "http://127.0.0.1:9000")

	raw, err := b.PresignUploadPart(context.Background(), "0f3c_autoantibody.csv", "upload-42", 3)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/0f3c_autoantibody.csv", u.Path)
	q := u.Query()
	assert.Equal(t, "3", q.Get("partNumber"))
	assert.Equal(t, "upload-42", q.Get("uploadId"))
	assert.Equal(t, "3600", q.Get("X-Amz-Expires"))
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
}

func TestPresignPutObject(t *testing.T) {
	b := newTestBackend(t, "http://127.0.0.1:9000")

	raw, err := b.PresignPutObject(context.Background(), "77aa_autoantibody.tsv", "")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/77aa_autoantibody.tsv", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestMultipartLifecycle(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	b := newTestBackend(t, srv.URL)
	ctx := context.Background()

	id, err := b.CreateMultipartUpload(ctx, "k.csv", "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "upload-42", id)

	loc, err := b.CompleteMultipartUpload(ctx, "k.csv", id, []models.CompletedPart{
		{ETag: `"e1"`, PartNumber: 1},
		{ETag: `"e2"`, PartNumber: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://uploads/k.csv", loc)

	require.NoError(t, b.AbortMultipartUpload(ctx, "k.csv", id))

	calls := fake.calls()
	require.Len(t, calls, 3)
	assert.True(t, strings.HasPrefix(calls[0], "POST /uploads/k.csv?"), calls[0])
	assert.True(t, strings.HasPrefix(calls[1], "POST /uploads/k.csv?"), calls[1])
	assert.Contains(t, calls[1], "uploadId=upload-42")
	assert.True(t, strings.HasPrefix(calls[2], "DELETE /uploads/k.csv?"), calls[2])

	fake.mu.Lock()
	completeBody := fake.bodies[1]
	fake.mu.Unlock()
	assert.Contains(t, completeBody, "<PartNumber>2</PartNumber>")
	assert.Contains(t, completeBody, "e1")
}

func TestPresignResult(t *testing.T) {
	fake := &fakeS3{listed: `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>results</Name><KeyCount>1</KeyCount><Contents><Key>outputs/run-1/annotated.csv</Key><Size>12</Size></Contents></ListBucketResult>`}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	b := newTestBackend(t, srv.URL)

	raw, err := b.PresignResult(context.Background(), "outputs/run-1/")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/results/outputs/run-1/annotated.csv", u.Path)
}

func TestPresignResultRequiresExactlyOne(t *testing.T) {
	fake := &fakeS3{listed: `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>results</Name><KeyCount>0</KeyCount></ListBucketResult>`}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	b := newTestBackend(t, srv.URL)

	_, err := b.PresignResult(context.Background(), "outputs/missing/")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestPresignResultWithoutBucket(t *testing.T) {
	b, err := NewBackend(context.Background(), Options{
		Bucket: "uploads", Region: "eu-west-2",
		AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	_, err = b.PresignResult(context.Background(), "outputs/x/")
	assert.ErrorIs(t, err, ErrNoResultsBucket)
}
