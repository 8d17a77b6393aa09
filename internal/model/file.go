// Package model defines database models
package model

type File struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"-"`

	// Client-facing identifier, assigned once at ingestion
	UUID string `gorm:"uniqueIndex;not null" json:"fileId"`

	// Original file name before it was turned into a staging name
	OriginalName string `json:"name"`
	Encoding     string `json:"encoding,omitempty"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`

	// Path is the locator shown to clients. It starts out as the staging
	// path and is rewritten to the object store URL when the worker
	// finishes. StagingPath and StorageKey carry the same information in
	// explicit fields; Path stays around for rows written before the split.
	Path        string `json:"path"`
	StagingPath string `json:"-"`
	StorageKey  string `json:"-"`

	Status    FileStatus `gorm:"default:pending" json:"status"`
	IsDeleted bool       `gorm:"default:false" json:"-"`

	// Nil means the file is public
	UploaderID *string `json:"-"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"autoUpdateTime" json:"-"`
}

// VisibleTo reports whether a user may see this file. An empty userID
// means an anonymous request.
func (f *File) VisibleTo(userID string) bool {
	if f.UploaderID == nil {
		return true
	}
	return userID != "" && *f.UploaderID == userID
}
