package services

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dpup/prefab/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/export"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/fusion"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/navigation"
)

// NavigationAPI exposes sessions over REST and WebSocket
type NavigationAPI struct {
	manager     *SessionManager
	corsOrigins []string
}

// NewNavigationAPI creates the HTTP surface for manager
func NewNavigationAPI(manager *SessionManager, corsOrigins []string) *NavigationAPI {
	return &NavigationAPI{manager: manager, corsOrigins: corsOrigins}
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// SessionResponse is returned when a session is created
type SessionResponse struct {
	ID    string                     `json:"id"`
	State navigation.NavigationState `json:"state"`
}

// StartRequest is the body of POST /v1/sessions/{id}/start
type StartRequest struct {
	Destination string `json:"destination"`
}

// StayResponse reports whether an arrival auto-end was cancelled
type StayResponse struct {
	Cancelled bool                       `json:"cancelled"`
	State     navigation.NavigationState `json:"state"`
}

// PositionResponse is the fused position plus dead reckoning diagnostics
type PositionResponse struct {
	Position    *fusion.Position `json:"position"`
	Pdr         fusion.PdrState  `json:"pdr"`
	Initialized bool             `json:"initialized"`
}

// Routes returns the chi router serving /v1 and /ws
func (a *NavigationAPI) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", a.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getState)
			r.Delete("/", a.deleteSession)
			r.Get("/position", a.getPosition)
			r.Get("/route.kml", a.getRouteKML)
			r.Post("/start", a.startNavigation)
			r.Post("/recalculate", a.action((*navigation.Session).RecalculateRoute))
			r.Post("/alternative", a.action((*navigation.Session).UseAlternativeRoute))
			r.Post("/next", a.action((*navigation.Session).NextStep))
			r.Post("/previous", a.action((*navigation.Session).PreviousStep))
			r.Post("/end", a.action((*navigation.Session).EndNavigation))
			r.Post("/stay", a.stay)
		})
	})
	r.Get("/ws/sessions/{id}", a.serveWebSocket)

	return r
}

// requestLogger attaches the manager's logger to requests that arrive without one
func (a *NavigationAPI) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(a.manager.withLogger(r.Context())))
	})
}

func (a *NavigationAPI) createSession(w http.ResponseWriter, r *http.Request) {
	ds, err := a.manager.Create(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: ds.ID, State: ds.Session.State()})
}

func (a *NavigationAPI) getState(w http.ResponseWriter, r *http.Request) {
	ds, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.Session.State())
}

func (a *NavigationAPI) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *NavigationAPI) getPosition(w http.ResponseWriter, r *http.Request) {
	ds, ok := a.lookup(w, r)
	if !ok {
		return
	}
	resp := PositionResponse{Pdr: ds.Engine.PdrState(), Initialized: ds.Engine.Initialized()}
	if pos, ok := ds.Engine.FusedPosition(); ok {
		resp.Position = &pos
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *NavigationAPI) getRouteKML(w http.ResponseWriter, r *http.Request) {
	ds, ok := a.lookup(w, r)
	if !ok {
		return
	}
	state := ds.Session.State()
	if state.Route == nil {
		writeError(w, r, status.Error(codes.NotFound, "no active route"))
		return
	}

	var position *geo.Point
	if pos, ok := ds.Engine.FusedPosition(); ok {
		p := pos.Point()
		position = &p
	}

	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="route.kml"`)
	if err := export.WriteRouteKML(w, "Route to "+state.Destination, state.Route, position); err != nil {
		logging.Errorw(r.Context(), "Failed to write route KML", "session", ds.ID, "error", err)
	}
}

func (a *NavigationAPI) startNavigation(w http.ResponseWriter, r *http.Request) {
	ds, ok := a.lookup(w, r)
	if !ok {
		return
	}
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, status.Error(codes.InvalidArgument, "invalid request body"))
		return
	}
	if err := ds.Session.StartNavigation(r.Context(), req.Destination); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds.Session.State())
}

// action adapts a session operation into a handler that responds with the resulting state
func (a *NavigationAPI) action(op func(*navigation.Session, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds, ok := a.lookup(w, r)
		if !ok {
			return
		}
		if err := op(ds.Session, r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ds.Session.State())
	}
}

func (a *NavigationAPI) stay(w http.ResponseWriter, r *http.Request) {
	ds, ok := a.lookup(w, r)
	if !ok {
		return
	}
	cancelled, err := ds.Session.CancelAutoEnd(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StayResponse{Cancelled: cancelled, State: ds.Session.State()})
}

func (a *NavigationAPI) lookup(w http.ResponseWriter, r *http.Request) (*DeviceSession, bool) {
	ds, err := a.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return ds, true
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err onto an HTTP status and the JSON error body
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		logging.Errorw(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, code, ErrorResponse{
		Error:     err.Error(),
		Code:      errs.Code(err).String(),
		Retryable: errs.IsRetryable(err),
	})
}
