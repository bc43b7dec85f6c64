package models

// MultipartUploadStart is returned by get-multipart-upload-url/.
type MultipartUploadStart struct {
	UploadID   string `json:"uploadId"`
	HashedName string `json:"hashed_name"`
	Status     int    `json:"status,omitempty"`
}

// PartUploadURL is returned by get-multipart-upload-part-url/.
type PartUploadURL struct {
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
}

// CompletedPart identifies one uploaded part in a completion request.
// Field names follow the storage backend's casing.
type CompletedPart struct {
	ETag       string `json:"ETag"`
	PartNumber int32  `json:"PartNumber"`
}

// CompleteMultipartUploadRequest is the body of complete-multipart-upload/.
type CompleteMultipartUploadRequest struct {
	Parts []CompletedPart `json:"parts"`
}

// MultipartUploadResult is returned by complete-multipart-upload/.
type MultipartUploadResult struct {
	Location   string `json:"location"`
	HashedName string `json:"hashed_name"`
	Status     int    `json:"status,omitempty"`
}

// SingleUploadURL is returned by get-upload-url/.
type SingleUploadURL struct {
	URL        string `json:"url"`
	HashedName string `json:"hashed_name"`
}

// ErrorResponse is the body the gateway returns on 4xx/5xx.
type ErrorResponse struct {
	Error string `json:"error"`
}
