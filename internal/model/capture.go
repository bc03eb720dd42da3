package model

import "time"

// Capture is the persisted metadata of one reassembled frame.
type Capture struct {
	ID         int64     `json:"sequence_id"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"storage_path"`
	FileSize   int64     `json:"filesize"`
	CapturedAt time.Time `json:"captured_at"`
	Deleted    bool      `json:"deleted"`
}
