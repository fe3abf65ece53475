package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionmap/internal/boundary"
	"github.com/sells-group/regionmap/internal/classify"
	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/metrics"
	"github.com/sells-group/regionmap/internal/pipeline"
	"github.com/sells-group/regionmap/internal/render"
	"github.com/sells-group/regionmap/internal/session"
	"github.com/sells-group/regionmap/internal/table"
)

// sessionResponse describes a session right after upload.
type sessionResponse struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Columns        []string                `json:"columns"`
	Levels         []geography.Level       `json:"levels"`
	Counts         map[geography.Level]int `json:"counts"`
	NationalRollup bool                    `json:"national_rollup"`
	Ambiguous      bool                    `json:"ambiguous"`
	Settings       pipeline.Settings       `json:"settings"`
}

func (s *Server) handleLevels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"levels":          s.cfg.Levels,
		"palettes":        classify.PaletteNames(),
		"default_palette": classify.DefaultPalette(),
		"min_colours":     classify.MinColours,
		"max_colours":     classify.MaxColours,
	})
}

func (s *Server) handlePlaceholder(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, render.Placeholder(s.cfg.Defaults.Options))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.UploadsTotal.WithLabelValues("too_large").Inc()
			s.writeError(w, http.StatusRequestEntityTooLarge, "too_large", "The uploaded file is too large.",
				map[string]any{"max_bytes": s.cfg.MaxUploadBytes})
			return
		}
		metrics.UploadsTotal.WithLabelValues("bad_request").Inc()
		s.writeError(w, http.StatusBadRequest, "bad_request", "Upload the file as multipart form field \"file\".", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("bad_request").Inc()
		s.writeError(w, http.StatusBadRequest, "bad_request", "Upload the file as multipart form field \"file\".", nil)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("bad_request").Inc()
		s.writeError(w, http.StatusBadRequest, "bad_request", "The upload could not be read.", nil)
		return
	}

	tbl, err := table.Read(header.Filename, data)
	if err != nil {
		var uploadErr *table.UploadError
		if errors.As(err, &uploadErr) {
			metrics.UploadsTotal.WithLabelValues(string(uploadErr.Kind)).Inc()
			s.log.Info("server: upload rejected", zap.String("file", header.Filename), zap.Error(err))
			s.writeError(w, http.StatusBadRequest, string(uploadErr.Kind), uploadErr.Message(), nil)
			return
		}
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		s.writeError(w, http.StatusInternalServerError, "internal", "The file could not be read.", nil)
		return
	}

	det, err := tbl.Detect()
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("unrecognized_geography").Inc()
		s.writeRenderError(w, err)
		return
	}

	sess := s.sessions.Create(tbl, det, s.cfg.Defaults)
	metrics.UploadsTotal.WithLabelValues("ok").Inc()

	s.writeJSON(w, http.StatusCreated, sessionResponse{
		ID:             sess.ID,
		Name:           tbl.Name,
		Columns:        tbl.Columns(),
		Levels:         det.Levels,
		Counts:         det.Counts,
		NationalRollup: det.NationalRollup,
		Ambiguous:      det.Ambiguous(),
		Settings:       sess.Settings(),
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session_not_found", "The session has expired. Upload the file again.", nil)
		return nil, false
	}
	return sess, true
}

// handleRender renders every column. The JSON body overrides the session's
// current settings field by field; an empty body reuses them.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	settings := sess.Settings()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "bad_request", "The render settings are not valid JSON.", nil)
		return
	}

	res, err := s.renderer.Render(pipeline.RenderRequest{Table: sess.Table, Settings: settings})
	if err != nil {
		s.writeRenderError(w, err)
		return
	}
	sess.SetSettings(settings)
	s.writeJSON(w, http.StatusOK, res)
}

// handleThresholds returns default thresholds per column. Query parameters
// level, num_colours and decimal_places override the session's settings.
func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	settings := sess.Settings()
	q := r.URL.Query()
	if v := q.Get("level"); v != "" {
		level, err := geography.ParseLevel(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
			return
		}
		settings.Level = level
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"num_colours", &settings.NumColours},
		{"decimal_places", &settings.Options.DecimalPlaces},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "bad_request", p.name+" must be an integer", nil)
			return
		}
		*p.dst = n
	}
	if q.Get("num_colours") != "" {
		settings.Colours = nil
	}

	cols, err := s.renderer.DefaultThresholds(sess.Table, settings)
	if err != nil {
		s.writeRenderError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"columns": cols})
}

type thresholdEdit struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// handleSetThreshold moves one discrete bound, keeping it between its
// neighbours. A session without explicit thresholds starts from the first
// column's defaults.
func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var edit thresholdEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "The threshold edit is not valid JSON.", nil)
		return
	}

	settings := sess.Settings()
	if settings.Mode == classify.ModeContinuous {
		s.writeError(w, http.StatusBadRequest, "invalid_thresholds", "Thresholds only apply to discrete colouring.", nil)
		return
	}
	current := settings.Thresholds
	if len(current) == 0 {
		cols, err := s.renderer.DefaultThresholds(sess.Table, settings)
		if err != nil {
			s.writeRenderError(w, err)
			return
		}
		if len(cols) == 0 {
			s.writeError(w, http.StatusBadRequest, "invalid_thresholds", "The table has no data columns.", nil)
			return
		}
		current = cols[0].Thresholds
	}

	decimals := settings.Options.DecimalPlaces
	updated, err := classify.SetThreshold(current, edit.Index, edit.Value, decimals)
	if err != nil {
		s.writeRenderError(w, err)
		return
	}
	settings.Thresholds = updated
	sess.SetSettings(settings)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"thresholds": updated,
		"inputs":     classify.Inputs(updated, decimals),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session_not_found", "The session does not exist.", nil)
		return
	}
	_ = s.sessions.Delete(id)
	s.renderer.Forget(sess.Table.Fingerprint)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.renderer.CacheStats())
}

// writeRenderError maps pipeline failures to user-facing responses.
func (s *Server) writeRenderError(w http.ResponseWriter, err error) {
	var unrecognized *geography.UnrecognizedError
	switch {
	case errors.As(err, &unrecognized):
		s.writeError(w, http.StatusUnprocessableEntity, "unrecognized_geography",
			"The region codes in the first column were not recognised as ITL, Local Authority or MCA codes.",
			map[string]any{"code": unrecognized.Code})
	case eris.Is(err, geography.ErrAmbiguousLevel):
		s.writeError(w, http.StatusConflict, "choose_level",
			"The file contains several geography levels. Choose one to map.", nil)
	case eris.Is(err, classify.ErrInvalidThresholds):
		s.writeError(w, http.StatusBadRequest, "invalid_thresholds",
			"Thresholds must increase from one bound to the next.", nil)
	case eris.Is(err, classify.ErrColourCount):
		s.writeError(w, http.StatusBadRequest, "invalid_colours",
			"Choose between 2 and 6 colours.", nil)
	case eris.Is(err, boundary.ErrNoBoundaries):
		s.log.Error("server: no boundaries", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "no_boundaries",
			"Boundary data for this level is not available.", nil)
	default:
		s.log.Warn("server: render failed", zap.Error(err))
		s.writeError(w, http.StatusUnprocessableEntity, "render_failed", eris.Cause(err).Error(), nil)
	}
}
