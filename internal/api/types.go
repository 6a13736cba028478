// Package api defines the HTTP contract of the tilestitch server: request
// and response bodies, the ServerInterface the handlers implement and a chi
// router that binds path and query parameters before dispatching.
package api

import (
	"time"

	"github.com/kiesman99/tilestitch/pkg/tile"
)

// Defines values for HealthResponseStatus.
const (
	Healthy   HealthResponseStatus = "healthy"
	Unhealthy HealthResponseStatus = "unhealthy"
)

// Defines values for MergeParamsEncoding.
const (
	DataUrl MergeParamsEncoding = "data-url"
	Binary  MergeParamsEncoding = "binary"
)

// Defines values for error codes.
const (
	VALIDATIONERROR = "VALIDATION_ERROR"
	DECODEERROR     = "DECODE_ERROR"
	TILEMISSING     = "TILE_MISSING"
	IOERROR         = "IO_ERROR"
	TIMEOUT         = "TIMEOUT"
	INVALIDJSON     = "INVALID_JSON"
	INTERNALERROR   = "INTERNAL_ERROR"
	UNAVAILABLE     = "UNAVAILABLE"
	TOOLARGE        = "PAYLOAD_TOO_LARGE"
)

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Uptime    *int                 `json:"uptime,omitempty"`
	Version   *string              `json:"version,omitempty"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
	Details   *map[string]interface{} `json:"details,omitempty"`
}

// SplitRequest defines model for SplitRequest.
type SplitRequest struct {
	Source     string  `json:"source"`
	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
	OverlapX   float64 `json:"overlap_x"`
	OverlapY   float64 `json:"overlap_y"`
	PreferJpeg *bool   `json:"prefer_jpeg,omitempty"`
	DestDir    *string `json:"dest_dir,omitempty"`
}

// SplitResponse defines model for SplitResponse.
type SplitResponse struct {
	Tiles          []tile.Descriptor `json:"tiles"`
	OriginalWidth  int               `json:"original_width"`
	OriginalHeight int               `json:"original_height"`
	TempDir        string            `json:"temp_dir"`
	NewInputPath   string            `json:"new_input_path"`
}

// MergeRequest defines model for MergeRequest.
type MergeRequest struct {
	Tiles          []tile.Location `json:"tiles"`
	OriginalWidth  int             `json:"original_width"`
	OriginalHeight int             `json:"original_height"`
	OverlapX       float64         `json:"overlap_x"`
	OverlapY       float64         `json:"overlap_y"`
	KeyColor       *string         `json:"key_color,omitempty"`
	RemoveBg       *bool           `json:"remove_bg,omitempty"`
	Tolerance      *int            `json:"tolerance,omitempty"`
}

// MergeResponse defines model for MergeResponse.
type MergeResponse struct {
	Image     string          `json:"image"`
	Format    string          `json:"format"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Fallbacks []tile.Location `json:"fallbacks,omitempty"`
}

// CropRequest defines model for CropRequest.
type CropRequest struct {
	Source  string  `json:"source"`
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	DestDir *string `json:"dest_dir,omitempty"`
}

// CropResponse defines model for CropResponse.
type CropResponse struct {
	Path string `json:"path"`
}

// MergeParamsEncoding defines parameters for MergeTiles.
type MergeParamsEncoding string

// MergeParams defines parameters for MergeTiles.
type MergeParams struct {
	Encoding *MergeParamsEncoding `form:"encoding,omitempty" json:"encoding,omitempty"`
}

// GetTileParams defines parameters for GetTile.
type GetTileParams struct {
	Dir string  `form:"dir" json:"dir"`
	Ext *string `form:"ext,omitempty" json:"ext,omitempty"`
}

// PutTileParams defines parameters for PutTile.
type PutTileParams struct {
	Dir    string  `form:"dir" json:"dir"`
	Width  int     `form:"width" json:"width"`
	Height int     `form:"height" json:"height"`
	Ext    *string `form:"ext,omitempty" json:"ext,omitempty"`
}
