package dialogue_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/chat-screen/internal/dialogue"
	"github.com/MegaGrindStone/chat-screen/internal/models"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockInput struct {
	text string
}

type mockSubmit struct {
	handler func()
	enabled []bool
}

type mockLabel struct {
	text string
}

type mockNode struct {
	label *mockLabel
}

type mockItem struct {
	children map[string]*mockNode
}

// mockTemplate builds items with the listed slots; slots listed in unlabeled have no label.
type mockTemplate struct {
	slots     []string
	unlabeled []string
}

type mockContainer struct {
	items []*mockItem
	err   error
}

type mockScroll struct {
	durations []time.Duration
}

type mockReplier struct {
	reply   string
	release chan struct{}
	panics  bool

	mu     sync.Mutex
	inputs []string
	onSend func()
}

type mockArchive struct {
	sessionID string
	entries   []models.DialogueEntry
	err       error
	onAdd     func()
}

type fixture struct {
	input     *mockInput
	submit    *mockSubmit
	template  *mockTemplate
	container *mockContainer
	scroll    *mockScroll
	replier   *mockReplier
	logs      *bytes.Buffer
}

func newFixture(reply string) *fixture {
	return &fixture{
		input:     &mockInput{},
		submit:    &mockSubmit{},
		template:  &mockTemplate{slots: []string{dialogue.SpeakerSlot, dialogue.MessageSlot}},
		container: &mockContainer{},
		scroll:    &mockScroll{},
		replier:   &mockReplier{reply: reply},
		logs:      &bytes.Buffer{},
	}
}

func (f *fixture) config() dialogue.Config {
	return dialogue.Config{
		Input:     f.input,
		Submit:    f.submit,
		Container: f.container,
		Template:  f.template,
		Scroll:    f.scroll,
		Replier:   f.replier,
		Logger:    slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
}

func (f *fixture) screen(t *testing.T) *dialogue.Screen {
	t.Helper()

	s, err := dialogue.New(f.config())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func (f *fixture) errorCount() int {
	return strings.Count(f.logs.String(), "level=ERROR")
}

// shown returns the speaker and message labels of every item in the container.
func (f *fixture) shown() [][2]string {
	var res [][2]string
	for _, it := range f.container.items {
		res = append(res, [2]string{
			it.children[dialogue.SpeakerSlot].label.text,
			it.children[dialogue.MessageSlot].label.text,
		})
	}
	return res
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*dialogue.Config)
		wantErr error
	}{
		{name: "Complete config", mutate: func(*dialogue.Config) {}},
		{name: "Missing input", mutate: func(c *dialogue.Config) { c.Input = nil }, wantErr: dialogue.ErrMissingInput},
		{name: "Missing submit", mutate: func(c *dialogue.Config) { c.Submit = nil }, wantErr: dialogue.ErrMissingSubmit},
		{name: "Missing container", mutate: func(c *dialogue.Config) { c.Container = nil }, wantErr: dialogue.ErrMissingContainer},
		{name: "Missing template", mutate: func(c *dialogue.Config) { c.Template = nil }, wantErr: dialogue.ErrMissingTemplate},
		{name: "Missing scroll", mutate: func(c *dialogue.Config) { c.Scroll = nil }, wantErr: dialogue.ErrMissingScroll},
		{name: "Missing replier", mutate: func(c *dialogue.Config) { c.Replier = nil }, wantErr: dialogue.ErrMissingReplier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("")
			cfg := f.config()
			tt.mutate(&cfg)

			_, err := dialogue.New(cfg)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if f.submit.handler == nil {
					t.Error("New() should register a click handler")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		reply       string
		wantShown   [][2]string
		wantInputs  []string
		wantCleared bool
	}{
		{
			name:        "Reply",
			input:       "hello",
			reply:       "hi there",
			wantShown:   [][2]string{{"你:", "hello"}, {"AI:", "hi there"}},
			wantInputs:  []string{"hello"},
			wantCleared: true,
		},
		{
			name:        "Failed request",
			input:       "hello",
			reply:       models.RequestFailed,
			wantShown:   [][2]string{{"你:", "hello"}, {"AI:", "请求失败。"}},
			wantInputs:  []string{"hello"},
			wantCleared: true,
		},
		{
			name:        "Trimmed input",
			input:       "  hello \n",
			reply:       "hi",
			wantShown:   [][2]string{{"你:", "hello"}, {"AI:", "hi"}},
			wantInputs:  []string{"hello"},
			wantCleared: true,
		},
		{
			name:      "Whitespace input",
			input:     "   ",
			wantShown: [][2]string{{"系统提示:", "请输入内容！"}},
		},
		{
			name:      "Empty input",
			input:     "",
			wantShown: [][2]string{{"系统提示:", "请输入内容！"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.reply)
			f.input.text = tt.input
			s := f.screen(t)

			s.Submit(context.Background())

			if diff := cmp.Diff(tt.wantShown, f.shown()); diff != "" {
				t.Errorf("shown mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantInputs, f.replier.inputs); diff != "" {
				t.Errorf("replier inputs mismatch (-want +got):\n%s", diff)
			}
			if cleared := f.input.text == ""; tt.wantCleared && !cleared {
				t.Errorf("input = %q, want cleared", f.input.text)
			}
			if len(f.scroll.durations) != len(tt.wantShown) {
				t.Errorf("scrolled %d times, want %d", len(f.scroll.durations), len(tt.wantShown))
			}
			for _, d := range f.scroll.durations {
				if d != dialogue.ScrollDuration {
					t.Errorf("scroll duration = %v, want %v", d, dialogue.ScrollDuration)
				}
			}
			if len(s.Entries()) != len(tt.wantShown) {
				t.Errorf("Entries() len = %d, want %d", len(s.Entries()), len(tt.wantShown))
			}
			if f.errorCount() != 0 {
				t.Errorf("unexpected error logs: %s", f.logs.String())
			}
		})
	}
}

func TestSubmitClearsInputBeforeReply(t *testing.T) {
	f := newFixture("hi there")
	f.input.text = "hello"
	s := f.screen(t)

	var inputAtSend string
	var entriesAtSend int
	f.replier.onSend = func() {
		inputAtSend = f.input.text
		entriesAtSend = len(s.Entries())
	}

	s.Submit(context.Background())

	if inputAtSend != "" {
		t.Errorf("input while awaiting reply = %q, want cleared", inputAtSend)
	}
	if entriesAtSend != 1 {
		t.Errorf("entries while awaiting reply = %d, want 1", entriesAtSend)
	}
}

func TestEntriesRoles(t *testing.T) {
	f := newFixture("hi there")
	s := f.screen(t)

	f.input.text = " "
	s.Submit(context.Background())
	f.input.text = "hello"
	s.Submit(context.Background())

	entries := s.Entries()
	want := []struct {
		role    models.Role
		speaker string
		message string
	}{
		{models.RoleSystem, models.SpeakerSystem, models.NoticeEmptyInput},
		{models.RoleUser, models.SpeakerUser, "hello"},
		{models.RoleAssistant, models.SpeakerAssistant, "hi there"},
	}
	if len(entries) != len(want) {
		t.Fatalf("Entries() len = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		e := entries[i]
		if e.Role != w.role || e.Speaker != w.speaker || e.Message != w.message {
			t.Errorf("entry %d = %+v, want %+v", i, e, w)
		}
	}

	// The returned slice is a copy
	entries[0].Message = "changed"
	if s.Entries()[0].Message != models.NoticeEmptyInput {
		t.Error("Entries() should not expose internal state")
	}
}

func TestAppendEntryAborts(t *testing.T) {
	tests := []struct {
		name      string
		slots     []string
		unlabeled []string
	}{
		{name: "Missing message slot", slots: []string{dialogue.SpeakerSlot}},
		{name: "Missing speaker slot", slots: []string{dialogue.MessageSlot}},
		{name: "No slots"},
		{
			name:      "Missing message label",
			slots:     []string{dialogue.SpeakerSlot, dialogue.MessageSlot},
			unlabeled: []string{dialogue.MessageSlot},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("")
			f.template.slots = tt.slots
			f.template.unlabeled = tt.unlabeled
			s := f.screen(t)

			if s.AppendEntry(models.RoleUser, models.SpeakerUser, "hello") {
				t.Error("AppendEntry() = true, want false")
			}
			if len(f.container.items) != 0 {
				t.Errorf("container has %d items, want 0", len(f.container.items))
			}
			if len(f.scroll.durations) != 0 {
				t.Error("scroll should not move on an aborted append")
			}
			if len(s.Entries()) != 0 {
				t.Errorf("Entries() len = %d, want 0", len(s.Entries()))
			}
			if got := f.errorCount(); got != 1 {
				t.Errorf("error logs = %d, want 1; logs: %s", got, f.logs.String())
			}
		})
	}
}

func TestAppendEntryContainerFailure(t *testing.T) {
	f := newFixture("hi there")
	f.container.err = errors.New("template: dialogue_item: can't evaluate field Missing")
	f.input.text = "hello"
	archive := &mockArchive{}
	cfg := f.config()
	cfg.Archive = archive

	s, err := dialogue.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Submit(context.Background())

	if len(s.Entries()) != 0 {
		t.Errorf("Entries() len = %d, want 0", len(s.Entries()))
	}
	if len(f.scroll.durations) != 0 {
		t.Error("scroll should not move when the container rejects an item")
	}
	if len(archive.entries) != 0 {
		t.Errorf("archived %d entries, want 0", len(archive.entries))
	}
	if got := f.errorCount(); got != 2 {
		t.Errorf("error logs = %d, want 2; logs: %s", got, f.logs.String())
	}
	if s.Busy() {
		t.Error("screen should be idle after the reply")
	}
}

func TestSubmitWithBrokenTemplateStillRecovers(t *testing.T) {
	f := newFixture("hi there")
	f.template.slots = []string{dialogue.SpeakerSlot}
	f.input.text = "hello"
	s := f.screen(t)

	s.Submit(context.Background())

	if len(f.replier.inputs) != 1 {
		t.Errorf("replier calls = %d, want 1", len(f.replier.inputs))
	}
	if f.input.text != "" {
		t.Errorf("input = %q, want cleared", f.input.text)
	}
	if s.Busy() {
		t.Error("screen should be idle after the reply")
	}

	// The screen remains usable once the template is fixed
	f.template.slots = []string{dialogue.SpeakerSlot, dialogue.MessageSlot}
	f.input.text = "again"
	s.Submit(context.Background())

	want := [][2]string{{"你:", "again"}, {"AI:", "hi there"}}
	if diff := cmp.Diff(want, f.shown()); diff != "" {
		t.Errorf("shown mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendEntryOrder(t *testing.T) {
	f := newFixture("")
	s := f.screen(t)

	const n = 25
	for i := 0; i < n; i++ {
		if !s.AppendEntry(models.RoleSystem, "n", strings.Repeat("x", i)) {
			t.Fatalf("AppendEntry(%d) = false", i)
		}
	}

	if len(f.container.items) != n {
		t.Fatalf("container has %d items, want %d", len(f.container.items), n)
	}
	for i, e := range s.Entries() {
		if e.Message != strings.Repeat("x", i) {
			t.Errorf("entry %d = %q, out of order", i, e.Message)
		}
		if got := f.container.items[i].children[dialogue.MessageSlot].label.text; got != e.Message {
			t.Errorf("item %d shows %q, want %q", i, got, e.Message)
		}
	}
}

func TestClickWhileAwaitingReply(t *testing.T) {
	f := newFixture("hi there")
	f.replier.release = make(chan struct{})
	f.input.text = "first"
	s := f.screen(t)

	f.submit.handler()

	if !s.Busy() {
		t.Fatal("screen should be busy while the reply is awaited")
	}
	if len(f.submit.enabled) != 1 || f.submit.enabled[0] {
		t.Errorf("enabled changes = %v, want [false]", f.submit.enabled)
	}

	// A second click while busy is ignored and leaves the input alone
	f.input.text = "second"
	f.submit.handler()
	if got := len(s.Entries()); got != 1 {
		t.Errorf("entries while busy = %d, want 1", got)
	}

	close(f.replier.release)
	s.Wait()

	if s.Busy() {
		t.Error("screen should be idle after the reply")
	}
	if len(f.submit.enabled) != 2 || !f.submit.enabled[1] {
		t.Errorf("enabled changes = %v, want [false true]", f.submit.enabled)
	}
	want := [][2]string{{"你:", "first"}, {"AI:", "hi there"}}
	if diff := cmp.Diff(want, f.shown()); diff != "" {
		t.Errorf("shown mismatch (-want +got):\n%s", diff)
	}
	if f.replier.calls() != 1 {
		t.Errorf("replier calls = %d, want 1", f.replier.calls())
	}
	if f.input.text != "second" {
		t.Errorf("input = %q, want the ignored text to stay", f.input.text)
	}
}

func TestReplierPanic(t *testing.T) {
	f := newFixture("")
	f.replier.panics = true
	f.input.text = "hello"
	s := f.screen(t)

	s.Submit(context.Background())

	want := [][2]string{{"你:", "hello"}, {"AI:", models.RequestFailed}}
	if diff := cmp.Diff(want, f.shown()); diff != "" {
		t.Errorf("shown mismatch (-want +got):\n%s", diff)
	}
	if f.errorCount() != 1 {
		t.Errorf("error logs = %d, want 1", f.errorCount())
	}
}

func TestArchiveRunsOutsideHandleLock(t *testing.T) {
	f := newFixture("hi there")
	f.input.text = "hello"
	archive := &mockArchive{}
	cfg := f.config()
	cfg.Archive = archive

	s, err := dialogue.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	// The archive sees the screen state it is recording
	var seen []int
	archive.onAdd = func() {
		seen = append(seen, len(s.Entries()))
	}

	f.submit.handler()
	s.Wait()

	if diff := cmp.Diff([]int{1, 2}, seen); diff != "" {
		t.Errorf("entries seen by archive mismatch (-want +got):\n%s", diff)
	}
	var archived []string
	for _, e := range archive.entries {
		archived = append(archived, e.Message)
	}
	if diff := cmp.Diff([]string{"hello", "hi there"}, archived); diff != "" {
		t.Errorf("archived mismatch (-want +got):\n%s", diff)
	}
}

func TestArchive(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErrs  int
		wantShown int
	}{
		{name: "Archived", wantShown: 2},
		{name: "Archive failure", err: errors.New("disk full"), wantErrs: 2, wantShown: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("hi there")
			f.input.text = "hello"
			archive := &mockArchive{err: tt.err}
			cfg := f.config()
			cfg.Archive = archive
			cfg.SessionID = "session-1"

			s, err := dialogue.New(cfg)
			if err != nil {
				t.Fatal(err)
			}
			s.Submit(context.Background())

			if len(f.container.items) != tt.wantShown {
				t.Errorf("container has %d items, want %d", len(f.container.items), tt.wantShown)
			}
			if f.errorCount() != tt.wantErrs {
				t.Errorf("error logs = %d, want %d", f.errorCount(), tt.wantErrs)
			}
			if tt.err != nil {
				return
			}
			if archive.sessionID != "session-1" {
				t.Errorf("session = %q, want session-1", archive.sessionID)
			}
			entries := s.Entries()
			if len(archive.entries) != len(entries) {
				t.Fatalf("archived %d entries, want %d", len(archive.entries), len(entries))
			}
			for i := range entries {
				if archive.entries[i].ID != entries[i].ID {
					t.Errorf("archived entry %d = %s, want %s", i, archive.entries[i].ID, entries[i].ID)
				}
			}
		})
	}
}

func (m *mockInput) Text() string {
	return m.text
}

func (m *mockInput) SetText(text string) {
	m.text = text
}

func (m *mockSubmit) OnClick(handler func()) {
	m.handler = handler
}

func (m *mockSubmit) SetEnabled(enabled bool) {
	m.enabled = append(m.enabled, enabled)
}

func (m *mockLabel) SetText(text string) {
	m.text = text
}

func (m *mockNode) Label() (dialogue.Label, bool) {
	if m.label == nil {
		return nil, false
	}
	return m.label, true
}

func (m *mockItem) Child(name string) (dialogue.Node, bool) {
	n, ok := m.children[name]
	if !ok {
		return nil, false
	}
	return n, true
}

func (m *mockTemplate) Instantiate() dialogue.Item {
	it := &mockItem{children: map[string]*mockNode{}}
	for _, slot := range m.slots {
		n := &mockNode{label: &mockLabel{}}
		for _, u := range m.unlabeled {
			if u == slot {
				n.label = nil
			}
		}
		it.children[slot] = n
	}
	return it
}

func (m *mockContainer) AddChild(item dialogue.Item) error {
	if m.err != nil {
		return m.err
	}
	m.items = append(m.items, item.(*mockItem))
	return nil
}

func (m *mockScroll) ScrollToBottom(d time.Duration) {
	m.durations = append(m.durations, d)
}

func (m *mockReplier) Send(_ context.Context, input string) string {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	onSend := m.onSend
	m.mu.Unlock()

	if onSend != nil {
		onSend()
	}
	if m.release != nil {
		<-m.release
	}
	if m.panics {
		panic("replier exploded")
	}
	return m.reply
}

func (m *mockReplier) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.inputs)
}

func (m *mockArchive) AddEntry(_ context.Context, sessionID string, entry models.DialogueEntry) error {
	if m.onAdd != nil {
		m.onAdd()
	}
	if m.err != nil {
		return m.err
	}
	m.sessionID = sessionID
	m.entries = append(m.entries, entry)
	return nil
}
