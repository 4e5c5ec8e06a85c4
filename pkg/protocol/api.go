// Package protocol defines the API request/response types.
package protocol

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// PingResponse is returned by GET /api/ping/
type PingResponse struct {
	Status     string `json:"status"`
	LastUpdate string `json:"last_update"`
}

// VCS describes where a package version is maintained.
type VCS struct {
	Type    string `json:"type"`
	Browser string `json:"browser,omitempty"`
}

// VersionInfo is one entry of a package's version list.
type VersionInfo struct {
	Version string `json:"version"`
	VCS     *VCS   `json:"vcs,omitempty"`
}

// PackageResponse is returned by GET /api/src/{package}/
type PackageResponse struct {
	Type     string        `json:"type"`
	Package  string        `json:"package"`
	Versions []VersionInfo `json:"versions"`
	PTSLink  string        `json:"pts_link"`
}

// DirEntry is one child of a listed directory.
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DirectoryResponse is returned by GET /api/src/{package}/{version}/{path...}
// when the location is a package root or directory.
type DirectoryResponse struct {
	Type    string     `json:"type"`
	Package string     `json:"package"`
	Version string     `json:"version"`
	Path    string     `json:"path"`
	Content []DirEntry `json:"content"`
	VCS     *VCS       `json:"vcs,omitempty"`
	PTSLink string     `json:"pts_link"`
}

// FileResponse is returned by GET /api/src/{package}/{version}/{path...}
// when the location is a file.
type FileResponse struct {
	Type        string `json:"type"`
	Package     string `json:"package"`
	Version     string `json:"version"`
	Path        string `json:"path"`
	Name        string `json:"name"`
	MimeType    string `json:"mime_type"`
	IsText      bool   `json:"is_text"`
	Size        int64  `json:"size"`
	Permissions string `json:"permissions"`
	RawURL      string `json:"raw_url"`
	VCS         *VCS   `json:"vcs,omitempty"`
	PTSLink     string `json:"pts_link"`
}

// Occurrence is one location sharing a checksum.
type Occurrence struct {
	Package string `json:"package"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

// ChecksumResponse is returned by GET /api/sha256/{checksum}
type ChecksumResponse struct {
	SHA256  string       `json:"sha256"`
	Count   int          `json:"count"`
	Results []Occurrence `json:"results"`
}

// PurgeResponse is returned by POST /api/admin/cache/purge
type PurgeResponse struct {
	Purged map[string]int `json:"purged"`
}

// LogLevelRequest is the body for PUT /api/admin/loglevel
type LogLevelRequest struct {
	Level string `json:"level"`
}

// LogLevelResponse reports the active log level.
type LogLevelResponse struct {
	Level string `json:"level"`
}
