package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/MegaGrindStone/chat-screen/internal/dialogue"
)

// surface holds the state the dialogue screen writes through its handles. The bubbletea model
// copies it into its widgets whenever it is told that something changed.
type surface struct {
	mu         sync.Mutex
	input      string
	inputDirty bool
	enabled    bool
	items      []entryView
	scrollTo   bool
	onClick    func()

	notify func()
}

type entryView struct {
	speaker string
	message string
}

type inputField struct{ s *surface }

type submitControl struct{ s *surface }

type container struct{ s *surface }

type scrollRegion struct{ s *surface }

type itemTemplate struct{}

type item struct {
	view entryView
}

type slot struct {
	set func(string)
}

// changed tells the running program to redraw. It never blocks, since handles are also called from
// inside the program's update loop.
func (s *surface) changed() {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify()
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

// frame is a consistent copy of the surface. Taking a frame consumes the pending input reset and
// scroll request.
type frame struct {
	input    string
	setInput bool
	enabled  bool
	items    []entryView
	scroll   bool
}

func (s *surface) frame() frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := frame{
		input:    s.input,
		setInput: s.inputDirty,
		enabled:  s.enabled,
		items:    append([]entryView(nil), s.items...),
		scroll:   s.scrollTo,
	}
	s.inputDirty = false
	s.scrollTo = false
	return f
}

func (f inputField) Text() string {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	return f.s.input
}

func (f inputField) SetText(text string) {
	f.s.mu.Lock()
	f.s.input = text
	f.s.inputDirty = true
	f.s.mu.Unlock()

	f.s.changed()
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

	c.s.changed()
}

func (c container) AddChild(child dialogue.Item) error {
	it, ok := child.(*item)
	if !ok {
		return fmt.Errorf("foreign item %T added to dialogue container", child)
	}

	c.s.mu.Lock()
	c.s.items = append(c.s.items, it.view)
	c.s.mu.Unlock()

	c.s.changed()
	return nil
}

// ScrollToBottom jumps to the end; a terminal has no scroll animation.
func (r scrollRegion) ScrollToBottom(time.Duration) {
	r.s.mu.Lock()
	r.s.scrollTo = true
	r.s.mu.Unlock()

	r.s.changed()
}

func (itemTemplate) Instantiate() dialogue.Item {
	return &item{}
}

func (it *item) Child(name string) (dialogue.Node, bool) {
	switch name {
	case dialogue.SpeakerSlot:
		return slot{set: func(text string) { it.view.speaker = text }}, true
	case dialogue.MessageSlot:
		return slot{set: func(text string) { it.view.message = text }}, true
	}
	return nil, false
}

func (n slot) Label() (dialogue.Label, bool) {
	return n, true
}

func (n slot) SetText(text string) {
	n.set(text)
}
