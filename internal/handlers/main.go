package handlers

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	chatscreen "github.com/MegaGrindStone/chat-screen"
	"github.com/MegaGrindStone/chat-screen/internal/dialogue"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
)

// Config holds what Main needs besides the embedded assets.
type Config struct {
	Replier dialogue.Replier

	// Archive and SessionID are passed through to the dialogue screen.
	Archive   dialogue.Archive
	SessionID string

	// Templates replaces the embedded template filesystem. It must contain the same layout as
	// chatscreen.TemplateFS.
	Templates fs.FS

	Logger *slog.Logger
}

// Main serves the dialogue screen to browsers. The page is a view of a single screen shared by
// every connected browser; updates reach them through server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	surface *surface
	screen  *dialogue.Screen

	// submitMu makes setting the input and clicking submit one step.
	submitMu *sync.Mutex

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main instance. It parses the HTML templates, checks that the dialogue item
// template is defined, and builds the dialogue screen on top of the page handles.
func NewMain(cfg Config) (Main, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("module", "handlers"))

	templateFS := cfg.Templates
	if templateFS == nil {
		templateFS = chatscreen.TemplateFS
	}

	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		templateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}
	if tmpl.Lookup("dialogue_item") == nil {
		return Main{}, fmt.Errorf("dialogue_item template is not defined")
	}

	sseSrv := &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      []string{sse.DefaultTopic},
			}, true
		},
	}

	markdown := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(highlighting.WithStyle("github")),
		),
	)

	srf := &surface{
		sseSrv:    sseSrv,
		templates: tmpl,
		markdown:  markdown,
		enabled:   true,
		logger:    logger,
	}

	screen, err := dialogue.New(dialogue.Config{
		Input:     inputField{s: srf},
		Submit:    submitControl{s: srf},
		Container: container{s: srf},
		Template:  itemTemplate{s: srf},
		Scroll:    scrollRegion{s: srf},
		Replier:   cfg.Replier,
		Archive:   cfg.Archive,
		SessionID: cfg.SessionID,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return Main{}, err
	}

	return Main{
		sseSrv:    sseSrv,
		templates: tmpl,
		surface:   srf,
		screen:    screen,
		submitMu:  &sync.Mutex{},
		logger:    logger,
	}, nil
}

// Screen returns the dialogue screen behind the page.
func (m Main) Screen() *dialogue.Screen {
	return m.screen
}

// Shutdown gracefully terminates the Main instance. It waits for replies still in flight, as long as
// ctx allows, then broadcasts a close message to all connected clients and waits up to 5 seconds
// for connections to terminate.
func (m Main) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.screen.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutting down with replies still in flight")
	}

	e := &sse.Message{Type: sse.Type("closeDialogue")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
