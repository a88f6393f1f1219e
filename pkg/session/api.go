package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abworrall/cmdphot/pkg/photom"
)

// API serves the stored sessions as JSON, for whatever displays the
// masters and lets the user pick and label stars.
type API struct {
	Store *Store
	Now   func() time.Time
}

func NewRouter(store *Store) http.Handler {
	api := &API{Store: store, Now: time.Now}
	return api.Router()
}

func (api *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", api.ListHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", api.InfoHandler)
			r.Get("/stars", api.StarsHandler)
			r.Get("/offsets", api.OffsetsHandler)
			r.Get("/diagram", api.DiagramHandler)
			r.Post("/export", api.ExportHandler)
			r.Post("/toggle", api.ToggleHandler)
			r.Put("/stars/{index}/label", api.LabelHandler)
			r.Put("/stars/{index}/selected", api.SelectHandler)
		})
	})

	return r
}

// JSON has no NaN; undefined numbers go out as null.
func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

type starView struct {
	Index     int               `json:"index"`
	X         float64           `json:"x"`
	Y         float64           `json:"y"`
	Positions []photom.Position `json:"positions"`
	Flux      [2]*float64       `json:"flux"`
	Selected  bool              `json:"selected"`
	Label     *photom.Label     `json:"label"`
}

func newStarView(s photom.CanonicalStar) starView {
	return starView{
		Index:     s.Index,
		X:         s.X,
		Y:         s.Y,
		Positions: s.Positions,
		Flux:      [2]*float64{num(s.Flux[0]), num(s.Flux[1])},
		Selected:  s.Selected,
		Label:     s.Label,
	}
}

func newStarViews(stars photom.Stars) []starView {
	out := []starView{}
	for _, s := range stars {
		out = append(out, newStarView(s))
	}
	return out
}

type rowView struct {
	Index        int      `json:"index"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	FluxShort    *float64 `json:"flux_short"`
	FluxLong     *float64 `json:"flux_long"`
	MagShort     *float64 `json:"mag_short"`
	MagLong      *float64 `json:"mag_long"`
	ColourIndex  *float64 `json:"colour_index"`
	ColourIndex0 *float64 `json:"colour_index_0"`
}

type diagramView struct {
	ShortBand string                `json:"short_band"`
	LongBand  string                `json:"long_band"`
	Reddening float64               `json:"reddening"`
	Arbitrary bool                  `json:"arbitrary"`
	RefStar   int                   `json:"ref_star"`
	XLabel    string                `json:"x_label"`
	YLabel    string                `json:"y_label"`
	Rows      []rowView             `json:"rows"`
	Points    []photom.DiagramPoint `json:"points"`
	File      string                `json:"file,omitempty"`
}

func newDiagramView(d photom.Diagram) diagramView {
	v := diagramView{
		ShortBand: d.ShortBand,
		LongBand:  d.LongBand,
		Reddening: d.Reddening,
		Arbitrary: d.Arbitrary,
		RefStar:   d.RefStar,
		XLabel:    d.XLabel,
		YLabel:    d.YLabel,
		Rows:      []rowView{},
		Points:    d.Points,
	}
	for _, r := range d.Rows {
		v.Rows = append(v.Rows, rowView{
			Index:        r.Index,
			X:            r.X,
			Y:            r.Y,
			FluxShort:    num(r.FluxShort),
			FluxLong:     num(r.FluxLong),
			MagShort:     num(r.MagShort),
			MagLong:      num(r.MagLong),
			ColourIndex:  num(r.ColourIndex),
			ColourIndex0: num(r.ColourIndex0),
		})
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		photom.Log.Error().Err(err).Msg("encoding response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, photom.ErrSessionNotFound), errors.Is(err, photom.ErrUnknownStar):
		return http.StatusNotFound
	case errors.Is(err, photom.ErrInvalidLabel):
		return http.StatusBadRequest
	case errors.Is(err, photom.ErrNoStars):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func (api *API) ListHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := api.Store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (api *API) InfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := api.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (api *API) StarsHandler(w http.ResponseWriter, r *http.Request) {
	stars, err := api.Store.Stars(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStarViews(stars))
}

func (api *API) OffsetsHandler(w http.ResponseWriter, r *http.Request) {
	offsets, err := api.Store.Offsets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offsets)
}

func reddeningParam(r *http.Request, def float64) (float64, error) {
	s := r.URL.Query().Get("reddening")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("reddening %q is not a number", s)
	}
	return v, nil
}

// diagram calibrates the session's stars and builds the diagram; with
// export set it also writes the table into the session's result dir.
func (api *API) diagram(w http.ResponseWriter, r *http.Request, export bool) {
	id := chi.URLParam(r, "id")
	cfg, err := api.Store.Config(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	reddening, err := reddeningParam(r, cfg.Reddening)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	stars, err := api.Store.Stars(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var d photom.Diagram
	var file string
	if export {
		d, file, err = photom.ExportDiagram(cfg, stars, reddening, api.Now())
	} else {
		var mags photom.Magnitudes
		if mags, err = photom.Calibrate(stars); err == nil {
			d, err = photom.BuildDiagram(stars, mags, cfg.ShortColour, cfg.LongColour, reddening)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	v := newDiagramView(d)
	v.File = file
	writeJSON(w, http.StatusOK, v)
}

func (api *API) DiagramHandler(w http.ResponseWriter, r *http.Request) { api.diagram(w, r, false) }
func (api *API) ExportHandler(w http.ResponseWriter, r *http.Request)  { api.diagram(w, r, true) }

func (api *API) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	stars, err := api.Store.UpdateStars(r.Context(), chi.URLParam(r, "id"), func(ss photom.Stars) error {
		ss.ToggleSelection()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStarViews(stars))
}

func indexParam(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, fmt.Errorf("star index %q: %w", chi.URLParam(r, "index"), photom.ErrUnknownStar)
	}
	return idx, nil
}

// updateStar applies fn to one star of the session and responds with
// that star.
func (api *API) updateStar(w http.ResponseWriter, r *http.Request, fn func(ss photom.Stars, idx int) error) {
	idx, err := indexParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stars, err := api.Store.UpdateStars(r.Context(), chi.URLParam(r, "id"), func(ss photom.Stars) error {
		return fn(ss, idx)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	for _, s := range stars {
		if s.Index == idx {
			writeJSON(w, http.StatusOK, newStarView(s))
			return
		}
	}
	writeError(w, fmt.Errorf("star %d: %w", idx, photom.ErrUnknownStar))
}

type labelRequest struct {
	Short *float64 `json:"short"`
	Long  *float64 `json:"long"`
}

func (api *API) LabelHandler(w http.ResponseWriter, r *http.Request) {
	req := labelRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("label body: %v: %w", err, photom.ErrInvalidLabel))
		return
	}
	if req.Short == nil || req.Long == nil {
		writeError(w, fmt.Errorf("label body needs both short and long: %w", photom.ErrInvalidLabel))
		return
	}

	api.updateStar(w, r, func(ss photom.Stars, idx int) error {
		return ss.SetLabel(idx, *req.Short, *req.Long)
	})
}

type selectRequest struct {
	Selected *bool `json:"selected"`
}

func (api *API) SelectHandler(w http.ResponseWriter, r *http.Request) {
	req := selectRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Selected == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"selected\": true|false}"})
		return
	}

	api.updateStar(w, r, func(ss photom.Stars, idx int) error {
		return ss.SetSelected(idx, *req.Selected)
	})
}
