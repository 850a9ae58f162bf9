package worldline

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	We "github.com/maroda/worldline/engine"
	Wt "github.com/maroda/worldline/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SetupMux handles all data serving:
// - Prometheus metric endpoint
// - Websocket batch feed
// - Version for programmatic use
// - Session control: zoom, cursor, step, stream visibility
func (v *View) SetupMux() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", v.Stats.Handler())
	r.HandleFunc("/ws", v.WebsocketHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(v.StatsMiddleware)
	api.HandleFunc("/version", v.VersionHandler).Methods(http.MethodGet)
	api.HandleFunc("/session", v.SessionHandler).Methods(http.MethodGet)
	api.HandleFunc("/batch", v.BatchHandler).Methods(http.MethodGet)
	api.HandleFunc("/zoom", v.ZoomLevelsHandler).Methods(http.MethodGet)
	api.HandleFunc("/zoom", v.ZoomHandler).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/cursor", v.CursorHandler).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/step", v.StepHandler).Methods(http.MethodPost)
	api.HandleFunc("/streams/{id}/visible", v.StreamVisibleHandler).Methods(http.MethodPut, http.MethodPost)

	return r
}

// Handler is the traced router
func (v *View) Handler() http.Handler {
	return otelhttp.NewHandler(v.SetupMux(), "worldline")
}

var Version = "dev"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (v *View) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

type SessionData struct {
	ZoomLevel int         `json:"zoom"`
	Cursor    time.Time   `json:"cursor"`
	State     string      `json:"state"`
	Epoch     int         `json:"epoch"`
	Reference string      `json:"reference"`
	Bodies    int         `json:"bodies"`
	Events    int         `json:"events"`
	Streams   []Wt.Stream `json:"streams"`
}

func (v *View) SessionHandler(w http.ResponseWriter, r *http.Request) {
	s := v.Coord.Session()
	data := SessionData{
		ZoomLevel: s.ZoomLevel,
		Cursor:    s.TimeCursor,
		State:     v.Coord.State().String(),
		Epoch:     s.EpochYear,
		Reference: s.Reference,
		Bodies:    len(s.Bodies),
		Events:    len(s.Events),
		Streams:   s.Streams,
	}
	writeJSON(w, http.StatusOK, data)
}

// BatchHandler returns the last batch, or 503 when the scene is unavailable
func (v *View) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if err := v.Unavailable(); err != nil {
		writeErr(w, http.StatusServiceUnavailable, err)
		return
	}
	b := v.Latest()
	if b == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("no frame rendered yet"))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (v *View) ZoomLevelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v.Coord.Levels())
}

func (v *View) ZoomHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level int `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := v.Coord.SetZoomLevel(req.Level); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CursorHandler takes {"time": "..."} or {"now": true}
func (v *View) CursorHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time string `json:"time"`
		Now  bool   `json:"now"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	t := v.Coord.Now()
	if !req.Now {
		parsed, err := We.ParseTime(req.Time)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		t = parsed
	}
	if err := v.Coord.SetTimeCursor(t); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (v *View) StepHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps int `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := v.Coord.Step(req.Steps); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (v *View) StreamVisibleHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := v.Coord.SetStreamVisible(id, req.Visible); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
