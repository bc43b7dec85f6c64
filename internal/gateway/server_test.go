package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemab/aab/internal/api"
	"github.com/alchemab/aab/internal/cloud/providers/s3"
	"github.com/alchemab/aab/internal/cloud/upload"
	"github.com/alchemab/aab/internal/config"
	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/localfs"
	"github.com/alchemab/aab/internal/models"
)

const testSecret = "s3cr3t"

var hashedNamePattern = regexp.MustCompile(`^[0-9a-f-]{36}_autoantibody\.csv$`)

func newTestServer(backend Backend, secret string, groups ...string) *Server {
	return NewServer(config.GatewayConfig{
		KeySuffix:     "autoantibody",
		JWTSecret:     secret,
		AllowedGroups: groups,
	}, backend, nil)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h nethttp.Handler, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"runs/antibodies.csv":    ".csv",
		"antibodies.tar.parquet": ".parquet",
		"noext":                  "",
		"dir.v2/noext":           "",
		".hidden":                "",
		`C:\data\x.tsv`:          ".tsv",
		"trailing.":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, extension(in), in)
	}
}

func TestBeginAssignsHashedName(t *testing.T) {
	b := &fakeBackend{}
	h := newTestServer(b, "").Handler()

	rec := do(t, h, nethttp.MethodGet, "/get-multipart-upload-url/?file_path=runs/antibodies.csv", nil,
		map[string]string{"Content-Type": "text/csv"})
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var out models.MultipartUploadStart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "upload-7", out.UploadID)
	assert.Regexp(t, hashedNamePattern, out.HashedName)
	assert.Equal(t, []string{"create:" + out.HashedName}, b.recorded())
	assert.Equal(t, []string{"text/csv"}, b.contentTypes)
}

func TestBeginValidation(t *testing.T) {
	b := &fakeBackend{}
	h := newTestServer(b, "").Handler()

	rec := do(t, h, nethttp.MethodGet, "/get-multipart-upload-url/", nil, nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, msgNoQuery, errorOf(t, rec))

	rec = do(t, h, nethttp.MethodGet, "/get-multipart-upload-url/?other=1", nil, nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, msgNoFilePath, errorOf(t, rec))

	rec = do(t, h, nethttp.MethodGet, "/get-multipart-upload-url/?file_path=README", nil, nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, msgNoExtension, errorOf(t, rec))

	assert.Empty(t, b.recorded(), "invalid requests never reach storage")
}

func TestPartURLValidation(t *testing.T) {
	h := newTestServer(&fakeBackend{storageURL: "http://storage"}, "").Handler()

	tests := []struct {
		query string
		code  int
	}{
		{"", nethttp.StatusBadRequest},
		{"?file_path=k.csv&uploadId=u", nethttp.StatusBadRequest},
		{"?file_path=k.csv&uploadId=u&partNumber=0", nethttp.StatusBadRequest},
		{"?file_path=k.csv&uploadId=u&partNumber=10001", nethttp.StatusBadRequest},
		{"?file_path=k.csv&uploadId=u&partNumber=abc", nethttp.StatusBadRequest},
		{"?file_path=k.csv&uploadId=u&partNumber=2", nethttp.StatusOK},
	}
	for _, tt := range tests {
		rec := do(t, h, nethttp.MethodGet, "/get-multipart-upload-part-url/"+tt.query, nil, nil)
		assert.Equal(t, tt.code, rec.Code, tt.query)
	}

	rec := do(t, h, nethttp.MethodGet, "/get-multipart-upload-part-url/?file_path=k.csv&uploadId=u&partNumber=2", nil, nil)
	var out models.PartUploadURL
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "http://storage/k.csv?partNumber=2&uploadId=u", out.URL)
}

func TestCompleteRequiresParts(t *testing.T) {
	b := &fakeBackend{}
	h := newTestServer(b, "").Handler()

	rec := do(t, h, nethttp.MethodPost, "/complete-multipart-upload/?file_path=k.csv&uploadId=u", strings.NewReader(`{"parts":[]}`), nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec = do(t, h, nethttp.MethodPost, "/complete-multipart-upload/?file_path=k.csv&uploadId=u", strings.NewReader(`{not json`), nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec = do(t, h, nethttp.MethodPost, "/complete-multipart-upload/?file_path=k.csv&uploadId=u",
		strings.NewReader(`{"parts":[{"ETag":"\"a\"","PartNumber":1},{"ETag":"\"b\"","PartNumber":2}]}`), nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	var out models.MultipartUploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "k.csv", out.HashedName)
	assert.Equal(t, "https://uploads.s3.amazonaws.com/k.csv", out.Location)
	assert.Equal(t, []models.CompletedPart{{ETag: `"a"`, PartNumber: 1}, {ETag: `"b"`, PartNumber: 2}}, b.completed)
}

func TestAbort(t *testing.T) {
	b := &fakeBackend{}
	h := newTestServer(b, "").Handler()

	rec := do(t, h, nethttp.MethodDelete, "/abort-multipart-upload/?file_path=k.csv", nil, nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec = do(t, h, nethttp.MethodDelete, "/abort-multipart-upload/?file_path=k.csv&uploadId=u", nil, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, []string{"k.csv/u"}, b.aborted)
}

func TestWrongMethodIsRejected(t *testing.T) {
	h := newTestServer(&fakeBackend{}, "").Handler()
	rec := do(t, h, nethttp.MethodGet, "/abort-multipart-upload/?file_path=k.csv&uploadId=u", nil, nil)
	assert.Equal(t, nethttp.StatusMethodNotAllowed, rec.Code)
}

func TestPreflight(t *testing.T) {
	h := newTestServer(&fakeBackend{}, testSecret).Handler()
	rec := do(t, h, nethttp.MethodOptions, "/complete-multipart-upload/", nil, nil)
	assert.Equal(t, nethttp.StatusNoContent, rec.Code, "preflight skips auth")
	assert.Equal(t, "POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-access-token")
}

func TestBackendErrorIs500(t *testing.T) {
	b := &fakeBackend{err: errors.New("AccessDenied")}
	h := newTestServer(b, "").Handler()

	rec := do(t, h, nethttp.MethodGet, "/get-multipart-upload-url/?file_path=a.csv", nil, nil)
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)
	assert.Equal(t, "AccessDenied", errorOf(t, rec))
}

func TestUploadURL(t *testing.T) {
	b := &fakeBackend{storageURL: "http://storage"}
	h := newTestServer(b, "").Handler()

	rec := do(t, h, nethttp.MethodGet, "/get-upload-url/?file_path=antibodies.csv", nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var out models.SingleUploadURL
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Regexp(t, hashedNamePattern, out.HashedName)
	assert.Equal(t, "http://storage/"+out.HashedName+"?X-Amz-Signature=sig", out.URL)
}

func TestDownloadFile(t *testing.T) {
	b := &fakeBackend{result: "https://results/x?sig"}
	h := newTestServer(b, "").Handler()

	rec := do(t, h, nethttp.MethodPost, "/download-file", strings.NewReader(`{"hashId":"run-9"}`), nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var out models.DownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "https://results/x?sig", out.PresignedURL)
	assert.Equal(t, []string{"outputs/autoantibodyclassifier/run-9/autoantibody_annotated.input_file"}, b.prefixes)

	rec = do(t, h, nethttp.MethodPost, "/download-file", strings.NewReader(`{"hashId":"../etc"}`), nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	b.resultErr = fmt.Errorf("%w: 0 objects", s3.ErrResultNotFound)
	rec = do(t, h, nethttp.MethodPost, "/download-file", strings.NewReader(`{"hashId":"run-9"}`), nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestAuth(t *testing.T) {
	b := &fakeBackend{}
	h := newTestServer(b, testSecret, "eu-west-2_pool_Okta").Handler()
	target := "/get-multipart-upload-url/?file_path=a.csv"
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing", "", nethttp.StatusUnauthorized},
		{"garbage", "not-a-jwt", nethttp.StatusUnauthorized},
		{"wrong secret", signToken(t, "other", jwt.MapClaims{"exp": exp, "cognito:groups": []string{"eu-west-2_pool_Okta"}}), nethttp.StatusUnauthorized},
		{"expired", signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix(), "cognito:groups": []string{"eu-west-2_pool_Okta"}}), nethttp.StatusUnauthorized},
		{"wrong group", signToken(t, testSecret, jwt.MapClaims{"exp": exp, "cognito:groups": []string{"guests"}}), nethttp.StatusForbidden},
		{"no groups", signToken(t, testSecret, jwt.MapClaims{"exp": exp}), nethttp.StatusForbidden},
		{"cognito group", signToken(t, testSecret, jwt.MapClaims{"exp": exp, "cognito:groups": []string{"x", "eu-west-2_pool_Okta"}}), nethttp.StatusOK},
		{"plain groups claim", signToken(t, testSecret, jwt.MapClaims{"exp": exp, "groups": "eu-west-2_pool_Okta"}), nethttp.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, nethttp.MethodGet, target, nil, map[string]string{"x-access-token": tt.token})
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestAuthRejectsOtherAlgorithms(t *testing.T) {
	a := NewAuthenticator(testSecret, nil)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "x"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.ErrorIs(t, a.Verify(tok), ErrInvalidToken)

	ok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.NoError(t, a.Verify(ok), "no allowed groups means any valid token")
}

func TestNoSecretDisablesAuth(t *testing.T) {
	assert.Nil(t, NewAuthenticator("", []string{"g"}))
	h := newTestServer(&fakeBackend{}, "").Handler()
	rec := do(t, h, nethttp.MethodGet, "/get-multipart-upload-url/?file_path=a.csv", nil, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(&fakeBackend{}, "").Handler()
	_ = do(t, h, nethttp.MethodGet, "/get-multipart-upload-url/?file_path=a.csv", nil, nil)

	assert.Equal(t, nethttp.StatusOK, do(t, h, nethttp.MethodGet, "/healthz", nil, nil).Code)
	rec := do(t, h, nethttp.MethodGet, "/metrics", nil, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aab_gateway_requests_total{code="200",operation="beginMultipartUpload"}`)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := newTestServer(&fakeBackend{}, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := nethttp.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// objectStore accepts presigned PUTs and answers with an ETag per part.
type objectStore struct {
	mu    sync.Mutex
	parts map[string][]byte
}

func (o *objectStore) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPut {
		w.WriteHeader(nethttp.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	part := r.URL.Query().Get("partNumber")
	o.mu.Lock()
	o.parts[part] = body
	o.mu.Unlock()
	w.Header().Set("ETag", fmt.Sprintf(`"etag-%s"`, part))
	w.WriteHeader(nethttp.StatusOK)
}

// TestEndToEndMultipartUpload drives the real client and session against the gateway.
func TestEndToEndMultipartUpload(t *testing.T) {
	store := &objectStore{parts: make(map[string][]byte)}
	storage := httptest.NewServer(store)
	defer storage.Close()

	backend := &fakeBackend{storageURL: storage.URL}
	gw := httptest.NewServer(newTestServer(backend, testSecret, "uploaders").Handler())
	defer gw.Close()

	data := []byte("heavy,light\nIGHV1-2,IGKV1-39\nIGHV3-23,IGLV2-14\n")
	path := filepath.Join(t.TempDir(), "antibodies.csv")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	file, err := localfs.Open(path)
	require.NoError(t, err)
	defer file.Close()

	client, err := api.NewClient(&config.Config{APIBaseURL: gw.URL, RatePerSec: 100, RateBurst: 100}, nil)
	require.NoError(t, err)

	token := signToken(t, testSecret, jwt.MapClaims{
		"exp":            time.Now().Add(time.Hour).Unix(),
		"cognito:groups": []string{"uploaders"},
	})
	creds := credentials.Static{IDToken: "id", AccessToken: token}

	session := upload.NewSession(client, creds, file, upload.Options{
		DestinationPath: "runs/antibodies.csv",
		ChunkSize:       16,
		HTTPClient:      storage.Client(),
	})
	res, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, upload.StateCompleted, session.State())
	assert.Regexp(t, hashedNamePattern, res.HashedName)
	assert.Equal(t, "https://uploads.s3.amazonaws.com/"+res.HashedName, res.Location)
	assert.Equal(t, 3, res.Parts)

	assert.Equal(t, []models.CompletedPart{
		{ETag: `"etag-1"`, PartNumber: 1},
		{ETag: `"etag-2"`, PartNumber: 2},
		{ETag: `"etag-3"`, PartNumber: 3},
	}, backend.completed)

	store.mu.Lock()
	got := append(append(append([]byte(nil), store.parts["1"]...), store.parts["2"]...), store.parts["3"]...)
	store.mu.Unlock()
	assert.Equal(t, data, got)

	assert.Equal(t, []string{
		"create:" + res.HashedName,
		"presign-part:1",
		"presign-part:2",
		"presign-part:3",
		"complete:" + res.HashedName,
	}, backend.recorded())
}

func TestEndToEndRejectedTokenCallsNothing(t *testing.T) {
	backend := &fakeBackend{}
	gw := httptest.NewServer(newTestServer(backend, testSecret).Handler())
	defer gw.Close()

	client, err := api.NewClient(&config.Config{APIBaseURL: gw.URL, RatePerSec: 100, RateBurst: 100}, nil)
	require.NoError(t, err)

	_, err = client.BeginMultipartUpload(context.Background(), credentials.Credentials{IDToken: "id", AccessToken: "bogus"}, "a.csv", "text/csv")
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, nethttp.StatusUnauthorized))
	assert.Empty(t, backend.recorded())
}
