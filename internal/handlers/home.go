package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
)

type homePageData struct {
	Items   []template.HTML
	Input   string
	Enabled bool
}

// HandleHome renders the dialogue page with every item shown so far.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if err := m.templates.ExecuteTemplate(w, "home.html", m.surface.snapshot()); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleHealth reports that the server is up.
func (m Main) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
