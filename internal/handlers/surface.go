package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/chat-screen/internal/dialogue"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
)

// surface is the server-side mirror of the page. Each handle type below wraps it and publishes its
// mutations to connected browsers, so the page is only ever changed by the dialogue screen.
type surface struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	mu      sync.Mutex
	input   string
	enabled bool
	items   []template.HTML
	onClick func()

	logger *slog.Logger
}

type inputField struct{ s *surface }

type submitControl struct{ s *surface }

type container struct{ s *surface }

type scrollRegion struct{ s *surface }

type itemTemplate struct{ s *surface }

// item is an instantiated dialogue_item template. Its child slots are the Speaker and Message
// sub-templates the template set defines.
type item struct {
	id      string
	speaker string
	message string

	templates *template.Template
}

type slot struct {
	set func(string)
}

type label struct {
	set func(string)
}

type itemData struct {
	ID      string
	Speaker string
	Message template.HTML
}

// SSE event types for page updates.
const (
	appendSSEType = "append"
	inputSSEType  = "input"
	submitSSEType = "submit"
	scrollSSEType = "scroll"
)

func (s *surface) publish(typ, data string) {
	msg := sse.Message{Type: sse.Type(typ)}
	msg.AppendData(data)
	if err := s.sseSrv.Publish(&msg); err != nil {
		s.logger.Error("Failed to publish page update",
			slog.String("type", typ),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (s *surface) setInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.input = text
}

func (s *surface) click() {
	s.mu.Lock()
	onClick := s.onClick
	s.mu.Unlock()

	if onClick != nil {
		onClick()
	}
}

// snapshot returns what a freshly loaded page has to show.
func (s *surface) snapshot() homePageData {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]template.HTML, len(s.items))
	copy(items, s.items)
	return homePageData{
		Items:   items,
		Input:   s.input,
		Enabled: s.enabled,
	}
}

func (s *surface) renderMessage(message string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(message), &buf); err != nil {
		s.logger.Error("Failed to render message markdown", slog.String(errLoggerKey, err.Error()))
		return template.HTML(template.HTMLEscapeString(message))
	}
	return template.HTML(buf.String())
}

func (f inputField) Text() string {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	return f.s.input
}

func (f inputField) SetText(text string) {
	f.s.setInput(text)
	f.s.publish(inputSSEType, text)
}

func (c submitControl) OnClick(handler func()) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.s.onClick = handler
}

func (c submitControl) SetEnabled(enabled bool) {
	c.s.mu.Lock()
	c.s.enabled = enabled
	c.s.mu.Unlock()

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	c.s.publish(submitSSEType, state)
}

func (c container) AddChild(child dialogue.Item) error {
	it, ok := child.(*item)
	if !ok {
		return fmt.Errorf("foreign item %T added to dialogue container", child)
	}

	var sb strings.Builder
	err := it.templates.ExecuteTemplate(&sb, "dialogue_item", itemData{
		ID:      it.id,
		Speaker: it.speaker,
		Message: c.s.renderMessage(it.message),
	})
	if err != nil {
		return fmt.Errorf("failed to execute dialogue_item template for item %s: %w", it.id, err)
	}

	html := template.HTML(sb.String())
	c.s.mu.Lock()
	c.s.items = append(c.s.items, html)
	c.s.mu.Unlock()

	c.s.publish(appendSSEType, string(html))
	return nil
}

func (r scrollRegion) ScrollToBottom(d time.Duration) {
	r.s.publish(scrollSSEType, strconv.FormatInt(d.Milliseconds(), 10))
}

func (t itemTemplate) Instantiate() dialogue.Item {
	return &item{
		id:        uuid.New().String(),
		templates: t.s.templates,
	}
}

func (it *item) Child(name string) (dialogue.Node, bool) {
	if it.templates.Lookup(name) == nil {
		return nil, false
	}

	switch name {
	case dialogue.SpeakerSlot:
		return slot{set: func(text string) { it.speaker = text }}, true
	case dialogue.MessageSlot:
		return slot{set: func(text string) { it.message = text }}, true
	}
	// Other sub-templates are decoration without text
	return slot{}, true
}

func (n slot) Label() (dialogue.Label, bool) {
	if n.set == nil {
		return nil, false
	}
	return label{set: n.set}, true
}

func (l label) SetText(text string) {
	l.set(text)
}
