package models

import "time"

// QueuedFile is a binary attachment (e.g. a photo) associated with a
// PendingWrite, stored out-of-line so enumerating pending writes never
// loads blob data. Shares the write's eviction exemption and is deleted
// together with it after a successful sync.
type QueuedFile struct {
	ID        string `db:"id" json:"id"`
	WriteID   string `db:"write_id" json:"write_id"`
	Blob      []byte `db:"blob" json:"-"`
	Filename  string `db:"filename" json:"filename"`
	MimeType  string `db:"mime_type" json:"mime_type"`
	CreatedAt int64  `db:"created_at" json:"created_at"` // unix millis
}

// TableName returns the table name for QueuedFile.
func (QueuedFile) TableName() string {
	return "queued_files"
}

// Time returns the creation timestamp as time.Time.
func (f *QueuedFile) Time() time.Time {
	return time.UnixMilli(f.CreatedAt)
}
