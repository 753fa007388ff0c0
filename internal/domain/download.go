package domain

import "time"

type DownloadStatus string

const (
	DownloadNone        DownloadStatus = "none"
	DownloadQueued      DownloadStatus = "queued"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
)

type DownloadRequest struct {
	ServerID     string `json:"serverId"`
	Core         string `json:"core"`
	MCVersion    string `json:"mcVersion"`
	BuildVersion string `json:"buildVersion"`
}

type DownloadTask struct {
	DownloadRequest
	Filename  string         `json:"filename"`
	Status    DownloadStatus `json:"status"`
	Progress  float64        `json:"progress"`
	Message   string         `json:"message"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// BuildInfo is what the catalog returns for one core build.
type BuildInfo struct {
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
	SHA1        string `json:"sha1"`
}
