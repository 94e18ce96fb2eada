package dto

// RunSyncRequest triggers a sync run. An empty source list means all
// sources. Force is accepted for callers that just cleared a stuck run
// via POST /sync/reset; it never preempts a run that is actually
// active.
type RunSyncRequest struct {
	Sources []string `json:"sources" binding:"omitempty,dive,syncsource"`
	Force   bool     `json:"force"`
}

// SaveCredentialsRequest replaces the stored external system
// credentials. The secret is accepted here and never echoed back.
type SaveCredentialsRequest struct {
	APIKey      string `json:"api_key" binding:"required"`
	APISecret   string `json:"api_secret" binding:"required"`
	AccountPath string `json:"account_path" binding:"required"`
	BaseURL     string `json:"base_url" binding:"required,url"`
}

// SourceURI binds the {source} path parameter.
type SourceURI struct {
	Source string `uri:"source" binding:"required,syncsource"`
}

// StagedFileResponse describes one staged CSV buffer.
type StagedFileResponse struct {
	Source     string `json:"source"`
	Size       int64  `json:"size"`
	UploadedAt string `json:"uploaded_at"`
}
