package adapthttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"salesboard/internal/app"
	"salesboard/internal/domain"
	"salesboard/internal/log"
)

// svgChart is implemented by charts that can be served as SVG.
type svgChart interface {
	SVG() ([]byte, error)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboardFrom(r.Context()).View())
}

// handleSetForm stores the draft form so other clients of the identity see it.
func (s *Server) handleSetForm(w http.ResponseWriter, r *http.Request) {
	var in domain.RecordInput
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d := dashboardFrom(r.Context())
	d.SetForm(in)
	writeJSON(w, http.StatusOK, d.View())
}

func (s *Server) handleDismissError(w http.ResponseWriter, r *http.Request) {
	d := dashboardFrom(r.Context())
	d.DismissError()
	writeJSON(w, http.StatusOK, d.View())
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in domain.RecordInput
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := dashboardFrom(r.Context()).Submit(r.Context(), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := dashboardFrom(r.Context()).Remove(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams every view as a server-sent event. Watch delivers the
// current view first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	d := dashboardFrom(r.Context())
	views, stop := d.Watch()
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case v, ok := <-views:
			if !ok {
				// Dropped as a slow watcher or the dashboard closed.
				return
			}
			if err := writeEvent(w, v); err != nil {
				log.FromContext(r.Context()).Debug("event stream ended", log.FieldError, err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, v app.View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: view\nid: %d\ndata: %s\n\n", v.Seq, data)
	return err
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	chart, ok := dashboardFrom(r.Context()).Chart().(svgChart)
	if !ok {
		http.Error(w, "no chart", http.StatusNotFound)
		return
	}
	svg, err := chart.SVG()
	if err != nil {
		// Replaced by a newer snapshot between lookup and read.
		http.Error(w, "chart changed, retry", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}
