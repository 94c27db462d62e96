package handlers

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HandleSubmit puts the "message" form field into the input box and clicks the submit control, the
// same way a user would on the page. The entries themselves reach the browser through SSE; the
// response only tells whether the click was taken.
//
// An empty message is accepted: the screen answers it with a notice entry. While a reply is awaited
// the submit control is disabled and the handler responds with 409 Conflict.
func (m Main) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		m.logger.Error("Failed to parse form", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	m.submitMu.Lock()
	defer m.submitMu.Unlock()

	if m.screen.Busy() {
		m.logger.Debug("Submit while awaiting reply")
		http.Error(w, "Awaiting reply", http.StatusConflict)
		return
	}

	m.surface.setInput(r.FormValue("message"))
	m.surface.click()

	w.WriteHeader(http.StatusAccepted)
}

// HandleSSE streams page updates to the browser.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Routes mounts every handler together with the static assets found under "static" in staticFS.
func (m Main) Routes(staticFS fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", m.HandleHome)
	r.Get("/health", m.HandleHealth)
	r.Post("/submit", m.HandleSubmit)
	r.Get("/sse", m.HandleSSE)

	if sub, err := fs.Sub(staticFS, "static"); err == nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
	} else {
		m.logger.Error("Failed to mount static files", slog.String(errLoggerKey, err.Error()))
	}

	return r
}
