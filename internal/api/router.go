package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Service health
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// Split an image into overlapping tiles
	// (POST /split)
	SplitImage(w http.ResponseWriter, r *http.Request)
	// Merge processed tiles into one image
	// (POST /merge)
	MergeTiles(w http.ResponseWriter, r *http.Request, params MergeParams)
	// Crop a region of an image
	// (POST /crop)
	CropImage(w http.ResponseWriter, r *http.Request)
	// Fetch the current content of a tile
	// (GET /tiles/{row}/{col})
	GetTile(w http.ResponseWriter, r *http.Request, row int, col int, params GetTileParams)
	// Store a processed tile, resampled to the given size
	// (PUT /tiles/{row}/{col})
	PutTile(w http.ResponseWriter, r *http.Request, row int, col int, params PutTileParams)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

// MiddlewareFunc wraps a handler
type MiddlewareFunc func(http.Handler) http.Handler

func (siw *ServerInterfaceWrapper) wrap(h http.Handler) http.Handler {
	for _, middleware := range siw.HandlerMiddlewares {
		h = middleware(h)
	}
	return h
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.GetHealth)).ServeHTTP(w, r)
}

// SplitImage operation middleware
func (siw *ServerInterfaceWrapper) SplitImage(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.SplitImage)).ServeHTTP(w, r)
}

// CropImage operation middleware
func (siw *ServerInterfaceWrapper) CropImage(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.CropImage)).ServeHTTP(w, r)
}

// MergeTiles operation middleware
func (siw *ServerInterfaceWrapper) MergeTiles(w http.ResponseWriter, r *http.Request) {
	var params MergeParams

	err := runtime.BindQueryParameter("form", true, false, "encoding", r.URL.Query(), &params.Encoding)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "encoding", Err: err})
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.MergeTiles(w, r, params)
	})).ServeHTTP(w, r)
}

// GetTile operation middleware
func (siw *ServerInterfaceWrapper) GetTile(w http.ResponseWriter, r *http.Request) {
	row, col, ok := siw.bindCell(w, r)
	if !ok {
		return
	}

	var params GetTileParams
	if !siw.bindQuery(w, r, "dir", true, &params.Dir) ||
		!siw.bindQuery(w, r, "ext", false, &params.Ext) {
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetTile(w, r, row, col, params)
	})).ServeHTTP(w, r)
}

// PutTile operation middleware
func (siw *ServerInterfaceWrapper) PutTile(w http.ResponseWriter, r *http.Request) {
	row, col, ok := siw.bindCell(w, r)
	if !ok {
		return
	}

	var params PutTileParams
	if !siw.bindQuery(w, r, "dir", true, &params.Dir) ||
		!siw.bindQuery(w, r, "width", true, &params.Width) ||
		!siw.bindQuery(w, r, "height", true, &params.Height) ||
		!siw.bindQuery(w, r, "ext", false, &params.Ext) {
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.PutTile(w, r, row, col, params)
	})).ServeHTTP(w, r)
}

// bindCell binds the "row" and "col" path parameters
func (siw *ServerInterfaceWrapper) bindCell(w http.ResponseWriter, r *http.Request) (row, col int, ok bool) {
	for _, p := range []struct {
		name string
		dest *int
	}{{"row", &row}, {"col", &col}} {
		err := runtime.BindStyledParameterWithOptions("simple", p.name, chi.URLParam(r, p.name), p.dest,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: p.name, Err: err})
			return 0, 0, false
		}
	}
	return row, col, true
}

func (siw *ServerInterfaceWrapper) bindQuery(w http.ResponseWriter, r *http.Request, name string, required bool, dest interface{}) bool {
	query := r.URL.Query()
	if required && !query.Has(name) {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: name})
		return false
	}
	if err := runtime.BindQueryParameter("form", true, required, name, query, dest); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

// RequiredParamError reports a missing required parameter
type RequiredParamError struct {
	ParamName string
}

func (e *RequiredParamError) Error() string {
	return fmt.Sprintf("Query argument %s is required, but not found", e.ParamName)
}

// InvalidParamFormatError reports a parameter that could not be bound
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ChiServerOptions configures HandlerWithOptions
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching the API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
		r.Post(options.BaseURL+"/split", wrapper.SplitImage)
		r.Post(options.BaseURL+"/merge", wrapper.MergeTiles)
		r.Post(options.BaseURL+"/crop", wrapper.CropImage)
		r.Get(options.BaseURL+"/tiles/{row}/{col}", wrapper.GetTile)
		r.Put(options.BaseURL+"/tiles/{row}/{col}", wrapper.PutTile)
	})

	return r
}
