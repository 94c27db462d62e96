package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/chat-screen/internal/models"
)

// Config carries the handles a Screen operates on. Every field except Archive, SessionID and Logger
// is required.
type Config struct {
	Input     InputField
	Submit    SubmitControl
	Container Container
	Template  ItemTemplate
	Scroll    ScrollRegion
	Replier   Replier

	// Archive, if set, receives every entry after it was appended, filed under SessionID. Writes
	// happen outside the handle lock, in display order.
	Archive   Archive
	SessionID string

	Logger *slog.Logger
}

// Screen is the dialogue controller. It is safe for concurrent use; handle calls never overlap.
type Screen struct {
	input     InputField
	submit    SubmitControl
	container Container
	template  ItemTemplate
	scroll    ScrollRegion
	replier   Replier
	archive   Archive
	sessionID string

	mu      sync.Mutex
	entries []models.DialogueEntry
	busy    bool
	pending []models.DialogueEntry

	// archiveMu is taken before mu, never while holding it.
	archiveMu sync.Mutex

	inflight sync.WaitGroup

	logger *slog.Logger
}

const (
	// SpeakerSlot and MessageSlot are the child names looked up in every instantiated item.
	SpeakerSlot = "Speaker"
	MessageSlot = "Message"

	// ScrollDuration is the animation length used when scrolling to the newest entry.
	ScrollDuration = 300 * time.Millisecond

	errLoggerKey = "err"
)

// Errors returned by New for a Config that lacks a required handle.
var (
	ErrMissingInput     = errors.New("input field is not assigned")
	ErrMissingSubmit    = errors.New("submit control is not assigned")
	ErrMissingContainer = errors.New("dialogue container is not assigned")
	ErrMissingTemplate  = errors.New("dialogue item template is not assigned")
	ErrMissingScroll    = errors.New("scroll region is not assigned")
	ErrMissingReplier   = errors.New("replier is not assigned")
)

// New validates cfg and returns a Screen whose click handler is registered on cfg.Submit.
func New(cfg Config) (*Screen, error) {
	var errs []error
	if cfg.Input == nil {
		errs = append(errs, ErrMissingInput)
	}
	if cfg.Submit == nil {
		errs = append(errs, ErrMissingSubmit)
	}
	if cfg.Container == nil {
		errs = append(errs, ErrMissingContainer)
	}
	if cfg.Template == nil {
		errs = append(errs, ErrMissingTemplate)
	}
	if cfg.Scroll == nil {
		errs = append(errs, ErrMissingScroll)
	}
	if cfg.Replier == nil {
		errs = append(errs, ErrMissingReplier)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid screen config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Screen{
		input:     cfg.Input,
		submit:    cfg.Submit,
		container: cfg.Container,
		template:  cfg.Template,
		scroll:    cfg.Scroll,
		replier:   cfg.Replier,
		archive:   cfg.Archive,
		sessionID: cfg.SessionID,
		logger:    logger.With(slog.String("module", "dialogue")),
	}
	s.submit.OnClick(s.click)

	return s, nil
}

// Submit runs a whole submission and returns once the reply entry was appended. With empty input it
// appends the empty-input notice and returns without contacting the Replier. While another
// submission awaits its reply, Submit does nothing.
func (s *Screen) Submit(ctx context.Context) {
	input, ok := s.begin()
	if !ok {
		return
	}
	s.finish(ctx, input)
}

// Wait blocks until every reply requested through the submit control has been appended.
func (s *Screen) Wait() {
	s.inflight.Wait()
}

// Busy reports whether a reply is being awaited.
func (s *Screen) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.busy
}

// Entries returns the entries shown so far, in display order.
func (s *Screen) Entries() []models.DialogueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.entries)
}

// AppendEntry shows a new entry at the end of the dialogue and scrolls to it. It reports false if the
// item could not be built, in which case nothing was changed.
func (s *Screen) AppendEntry(role models.Role, speaker, message string) bool {
	s.mu.Lock()
	ok := s.appendEntry(role, speaker, message)
	s.mu.Unlock()

	s.flushArchive()
	return ok
}

// click is the submit control handler. The first half of the submission runs in the caller so the
// input is read and cleared before the click returns; the reply is awaited in the background.
func (s *Screen) click() {
	input, ok := s.begin()
	if !ok {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		// Replies are never cancelled, not even by the frontend going away
		s.finish(context.Background(), input)
	}()
}

func (s *Screen) begin() (string, bool) {
	defer s.flushArchive()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		s.logger.Debug("Submission ignored while awaiting reply")
		return "", false
	}

	input := strings.TrimSpace(s.input.Text())
	if input == "" {
		s.appendEntry(models.RoleSystem, models.SpeakerSystem, models.NoticeEmptyInput)
		return "", false
	}

	s.appendEntry(models.RoleUser, models.SpeakerUser, input)
	s.input.SetText("")

	s.busy = true
	s.submit.SetEnabled(false)

	return input, true
}

func (s *Screen) finish(ctx context.Context, input string) {
	reply := s.send(ctx, input)

	s.mu.Lock()
	s.appendEntry(models.RoleAssistant, models.SpeakerAssistant, reply)
	s.busy = false
	s.submit.SetEnabled(true)
	s.mu.Unlock()

	s.flushArchive()
}

func (s *Screen) send(ctx context.Context, input string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Replier panicked", slog.String(errLoggerKey, fmt.Sprint(r)))
			reply = models.RequestFailed
		}
	}()

	return s.replier.Send(ctx, input)
}

// appendEntry must be called with s.mu held.
func (s *Screen) appendEntry(role models.Role, speaker, message string) bool {
	item := s.template.Instantiate()
	if item == nil {
		s.logger.Error("Dialogue item template produced no item")
		return false
	}

	speakerNode, okSpeaker := item.Child(SpeakerSlot)
	messageNode, okMessage := item.Child(MessageSlot)
	if !okSpeaker || !okMessage {
		s.logger.Error("Dialogue item structure is incorrect, 'Speaker' or 'Message' node is missing",
			slog.Bool("speaker", okSpeaker),
			slog.Bool("message", okMessage))
		return false
	}

	speakerLabel, okSpeaker := speakerNode.Label()
	messageLabel, okMessage := messageNode.Label()
	if !okSpeaker || !okMessage {
		s.logger.Error("Label is missing on 'Speaker' or 'Message' node",
			slog.Bool("speaker", okSpeaker),
			slog.Bool("message", okMessage))
		return false
	}

	entry := models.NewDialogueEntry(role, speaker, message)

	speakerLabel.SetText(speaker + ":")
	messageLabel.SetText(message)

	if err := s.container.AddChild(item); err != nil {
		s.logger.Error("Failed to add dialogue item", slog.String(errLoggerKey, err.Error()))
		return false
	}
	s.entries = append(s.entries, entry)
	s.scroll.ScrollToBottom(ScrollDuration)

	if s.archive != nil {
		s.pending = append(s.pending, entry)
	}

	return true
}

// flushArchive writes the entries appended since the last flush. It must be called without s.mu.
func (s *Screen) flushArchive() {
	if s.archive == nil {
		return
	}

	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, entry := range pending {
		if err := s.archive.AddEntry(context.Background(), s.sessionID, entry); err != nil {
			s.logger.Error("Failed to archive entry",
				slog.String("entryID", entry.ID),
				slog.String(errLoggerKey, err.Error()))
		}
	}
}
