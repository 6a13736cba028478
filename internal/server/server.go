package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/tilestitch/internal/api"
	"github.com/kiesman99/tilestitch/internal/stitch"
	"github.com/kiesman99/tilestitch/internal/stitcher"
	"github.com/kiesman99/tilestitch/pkg/tile"
)

// maxUploadBytes bounds the body of a tile upload
const maxUploadBytes = 256 << 20

// Server implements the ServerInterface from the api package
type Server struct {
	startTime time.Time
	version   string
	runner    *stitch.Runner
	log       log.FieldLogger
	maxUpload int64
}

// NewServer creates a new server instance. Heavy work is queued on runner.
func NewServer(version string, runner *stitch.Runner, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{
		startTime: time.Now(),
		version:   version,
		runner:    runner,
		log:       logger,
		maxUpload: maxUploadBytes,
	}
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}
	s.writeJSON(w, http.StatusOK, response)
}

// SplitImage implements the split endpoint. Without dest_dir a fresh
// temporary directory is created; it is never removed by the server.
func (s *Server) SplitImage(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	var req api.SplitRequest
	if !s.decodeBody(w, r, &req, &requestID) {
		return
	}
	if req.Source == "" {
		s.writeValidationErrorResponse(w, "source is required", &requestID)
		return
	}
	if req.Rows <= 0 || req.Cols <= 0 {
		s.writeValidationErrorResponse(w, "rows and cols must be greater than zero", &requestID)
		return
	}

	dir, err := s.destDir(req.DestDir, "tilestitch-split-")
	if err != nil {
		s.handleStitchingError(w, err, &requestID)
		return
	}

	opts := stitcher.SplitOptions{
		Rows:       req.Rows,
		Cols:       req.Cols,
		OverlapX:   req.OverlapX,
		OverlapY:   req.OverlapY,
		PreferJPEG: req.PreferJpeg != nil && *req.PreferJpeg,
	}
	res, err := stitch.Await(r.Context(), s.runner.Split(r.Context(), req.Source, dir, opts))
	if err != nil {
		s.handleStitchingError(w, err, &requestID)
		return
	}

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, api.SplitResponse{
		Tiles:          res.Tiles,
		OriginalWidth:  res.Width,
		OriginalHeight: res.Height,
		TempDir:        dir,
		NewInputPath:   res.SourcePath,
	})
}

// MergeTiles implements the merge endpoint
func (s *Server) MergeTiles(w http.ResponseWriter, r *http.Request, params api.MergeParams) {
	requestID := generateRequestID()

	var req api.MergeRequest
	if !s.decodeBody(w, r, &req, &requestID) {
		return
	}
	if req.Tolerance != nil && (*req.Tolerance < 0 || *req.Tolerance > 255) {
		s.writeValidationErrorResponse(w, "tolerance must be between 0 and 255", &requestID)
		return
	}

	encoding := api.DataUrl
	if params.Encoding != nil {
		encoding = *params.Encoding
	}
	if encoding != api.DataUrl && encoding != api.Binary {
		s.writeValidationErrorResponse(w, fmt.Sprintf("unknown encoding %q", encoding), &requestID)
		return
	}

	mreq := stitcher.MergeRequest{
		Tiles:            req.Tiles,
		Width:            req.OriginalWidth,
		Height:           req.OriginalHeight,
		OverlapX:         req.OverlapX,
		OverlapY:         req.OverlapY,
		Key:              tile.NewChromaKey(deref(req.KeyColor, string(tile.KeyWhite)), uint8(deref(req.Tolerance, 10))),
		RemoveBackground: deref(req.RemoveBg, false),
	}
	res, err := stitch.Await(r.Context(), s.runner.Merge(r.Context(), mreq))
	if err != nil {
		s.handleStitchingError(w, err, &requestID)
		return
	}

	w.Header().Set("X-Request-ID", requestID)
	if encoding == api.Binary {
		w.Header().Set("Content-Type", res.Format.MIME())
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.Data); err != nil {
			s.log.WithError(err).Warn("error writing response")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, api.MergeResponse{
		Image:     res.DataURL(),
		Format:    res.Format.String(),
		Width:     res.Image.Rect.Dx(),
		Height:    res.Image.Rect.Dy(),
		Fallbacks: res.Fallbacks,
	})
}

// CropImage implements the crop endpoint
func (s *Server) CropImage(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	var req api.CropRequest
	if !s.decodeBody(w, r, &req, &requestID) {
		return
	}
	if req.Source == "" {
		s.writeValidationErrorResponse(w, "source is required", &requestID)
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		s.writeValidationErrorResponse(w, "width and height must be positive", &requestID)
		return
	}

	dir, err := s.destDir(req.DestDir, "tilestitch-crop-")
	if err != nil {
		s.handleStitchingError(w, err, &requestID)
		return
	}

	rect := image.Rect(req.X, req.Y, req.X+req.Width, req.Y+req.Height)
	path, err := stitch.Await(r.Context(), s.runner.Crop(r.Context(), req.Source, rect, dir))
	if err != nil {
		s.handleStitchingError(w, err, &requestID)
		return
	}

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, api.CropResponse{Path: path})
}

// GetTile returns the current content of a tile, resolving a missing
// processed result to its original crop.
func (s *Server) GetTile(w http.ResponseWriter, r *http.Request, row int, col int, params api.GetTileParams) {
	requestID := generateRequestID()

	format := formatFromExt(params.Ext)
	processed := filepath.Join(params.Dir, tile.ProcessedName(row, col, format))
	for _, candidate := range tile.Candidates(processed, row, col) {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("Content-Type", tile.FormatFromPath(candidate).MIME())
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			s.log.WithError(err).Warn("error writing response")
		}
		return
	}

	s.handleStitchingError(w, &stitcher.MissingTileError{
		Row:        row,
		Col:        col,
		Candidates: tile.Candidates(processed, row, col),
	}, &requestID)
}

// PutTile stores an externally processed tile in its reserved slot,
// resampled to the requested size. The body is raw image bytes or a data URL.
func (s *Server) PutTile(w http.ResponseWriter, r *http.Request, row int, col int, params api.PutTileParams) {
	requestID := generateRequestID()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, api.TOOLARGE,
				fmt.Sprintf("tile upload exceeds %d bytes", tooLarge.Limit), &requestID, nil)
			return
		}
		s.writeErrorResponse(w, http.StatusBadRequest, api.INVALIDJSON, "could not read request body", &requestID, nil)
		return
	}
	if len(body) == 0 {
		s.writeValidationErrorResponse(w, "request body is empty", &requestID)
		return
	}
	if strings.HasPrefix(string(body[:min(len(body), 5)]), "data:") {
		if body, err = tile.DecodeDataURL(string(body)); err != nil {
			s.writeValidationErrorResponse(w, err.Error(), &requestID)
			return
		}
	}

	dest := filepath.Join(params.Dir, tile.ProcessedName(row, col, formatFromExt(params.Ext)))
	_, err = stitch.Await(r.Context(), s.runner.ResizeAndSave(r.Context(), body, params.Width, params.Height, dest))
	if err != nil {
		s.handleStitchingError(w, err, &requestID)
		return
	}

	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleParamError renders parameter binding failures from the api router
func (s *Server) HandleParamError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := generateRequestID()
	s.writeValidationErrorResponse(w, err.Error(), &requestID)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}, requestID *string) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, api.INVALIDJSON,
			"Invalid JSON in request body", requestID, nil)
		return false
	}
	return true
}

func (s *Server) destDir(requested *string, pattern string) (string, error) {
	if requested != nil && *requested != "" {
		return *requested, nil
	}
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", &stitcher.IOError{Op: "mkdir", Path: os.TempDir(), Err: err}
	}
	return dir, nil
}

// handleStitchingError maps engine errors to HTTP responses
func (s *Server) handleStitchingError(w http.ResponseWriter, err error, requestID *string) {
	var (
		gridErr    *stitcher.InvalidGridError
		decodeErr  *stitcher.DecodeError
		missingErr *stitcher.MissingTileError
		ioErr      *stitcher.IOError
	)

	switch {
	case errors.Is(err, stitcher.ErrEmptyInput):
		s.writeValidationErrorResponse(w, err.Error(), requestID)
	case errors.As(err, &gridErr):
		s.writeValidationErrorResponse(w, err.Error(), requestID)
	case errors.As(err, &decodeErr):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, api.DECODEERROR, err.Error(), requestID,
			map[string]interface{}{"path": decodeErr.Path})
	case errors.As(err, &missingErr):
		s.writeErrorResponse(w, http.StatusNotFound, api.TILEMISSING, err.Error(), requestID,
			map[string]interface{}{
				"row":        missingErr.Row,
				"col":        missingErr.Col,
				"candidates": missingErr.Candidates,
			})
	case errors.Is(err, stitch.ErrClosed):
		s.writeErrorResponse(w, http.StatusServiceUnavailable, api.UNAVAILABLE,
			"Server is shutting down", requestID, nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, api.TIMEOUT,
			"Request timed out before the job finished", requestID, nil)
	case errors.As(err, &ioErr):
		s.log.WithError(err).Error("storage failure")
		s.writeErrorResponse(w, http.StatusInternalServerError, api.IOERROR, err.Error(), requestID,
			map[string]interface{}{"path": ioErr.Path, "op": ioErr.Op})
	default:
		s.log.WithError(err).Error("unexpected failure")
		s.writeErrorResponse(w, http.StatusInternalServerError, api.INTERNALERROR,
			"Internal server error", requestID, nil)
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}
	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, message string, requestID *string) {
	s.writeErrorResponse(w, http.StatusBadRequest, api.VALIDATIONERROR, message, requestID, nil)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("error encoding response")
	}
}

func formatFromExt(ext *string) tile.Format {
	if ext == nil {
		return tile.FormatPNG
	}
	return tile.FormatFromPath("." + strings.TrimPrefix(*ext, "."))
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
