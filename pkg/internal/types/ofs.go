package types

// UploadResponse POST /ofs.
type UploadResponse struct {
	URI   string `json:"uri"`
	FName string `json:"fname"`
}

// CollectResponse POST /ofs/gc.
type CollectResponse struct {
	Deleted    []string `json:"deleted"`
	Retained   int      `json:"retained"`
	Referenced int      `json:"referenced"`
}

// ArchiveItem 打包条目，Path 为 null 时跳过该条目.
type ArchiveItem struct {
	ID   uint    `json:"id"   rule:"required"`
	Path *string `json:"path" rule:"omitempty,max=1024"`
}

// ArchiveRequest POST /archive.
type ArchiveRequest struct {
	Items []ArchiveItem `json:"items" rule:"dive"`
}
