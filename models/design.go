package models

import "time"

// Design is the durable record linking a finished asset to a keychain
// project. At most one design exists per task, enforced by a uniqueness
// constraint on TaskID.
type Design struct {
	ID           string
	TaskID       string
	OwnerID      string
	ThumbnailURL string
	ModelURLs    ModelURLs
	TextureURLs  []TextureSet
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
