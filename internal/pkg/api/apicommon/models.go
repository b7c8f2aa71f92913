package apicommon

import (
	"encoding/json"
	"fmt"
)

type SuccessResponse[T any] struct {
	Success T `json:"success"`
}

// ArchiveUpdateRequest starts an update from a downloadable bundle.
type ArchiveUpdateRequest struct {
	Source string `json:"source"`
	// Transport is one of TransportHTTP and TransportOCI, empty selects the configured default.
	Transport string            `json:"transport,omitempty"`
	Version   *int64            `json:"version,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	// Metadata is persisted as is, a JSON null is stored as an explicit null.
	Metadata           json.RawMessage `json:"metadata,omitempty"`
	Format             string          `json:"format,omitempty"`
	Restart            bool            `json:"restart,omitempty"`
	RestartDelayMillis int64           `json:"restart_delay_ms,omitempty"`
}

// GitUpdateRequest starts an update from a git repository.
type GitUpdateRequest struct {
	URL        string `json:"url"`
	BundlePath string `json:"bundle_path"`
	Branch     string `json:"branch,omitempty"`
	Folder     string `json:"folder,omitempty"`
	Restart    bool   `json:"restart,omitempty"`
}

// UpdateResponse reports the outcome of an operation that changes the active bundle.
type UpdateResponse struct {
	Outcome  string   `json:"outcome"`
	Branch   string   `json:"branch,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type VersionResponse struct {
	Version int64 `json:"version"`
	// Numeric is false if the stored version is not a number.
	Numeric bool `json:"numeric"`
}

type MetadataResponse struct {
	Metadata any  `json:"metadata"`
	Present  bool `json:"present"`
}

// APIError wraps around the actual error for easier JSON parsing.
type APIError struct {
	InnerError APIErrorInner `json:"error"`
}

func (a APIError) Error() string {
	return a.InnerError.Error()
}

// APIErrorInner represents an error from the API.
type APIErrorInner struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	// Kind is the error kind label of the failed operation.
	Kind         string `json:"kind,omitempty"`
	ErrorContext string `json:"context,omitempty"`
}

func (a APIErrorInner) Error() string {
	return fmt.Sprintf("agent responded with error: status code: %v, kind: %q, message: %q", a.Code, a.Kind, a.Message)
}
