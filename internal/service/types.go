// Package service is the host platform the map block is mounted in:
// settings persistence, block lifecycle, uploaded assets and change events.
package service

import (
	"time"

	"github.com/joeblew999/plat-mapblock/internal/block"
)

// Record is one stored block.
type Record struct {
	ID       string         `json:"id" doc:"Block identifier" example:"7f1c0a2e-6a1d-4d8e-9a57-1c0f2a9b3d44"`
	Name     string         `json:"name" maxLength:"100" doc:"Display name" example:"Office locations"`
	Created  time.Time      `json:"created" doc:"Creation time"`
	Updated  time.Time      `json:"updated" doc:"Last settings write"`
	Settings block.Settings `json:"settings"`
}

// Asset is an uploaded block file.
type Asset struct {
	Field string `json:"field" doc:"Settings field the asset belongs to" example:"markerIcon"`
	Name  string `json:"name" doc:"Stored file name"`
	Size  string `json:"size" doc:"Human-readable file size" example:"1.2 KB"`
	URL   string `json:"url" doc:"Public URL of the asset"`
}
