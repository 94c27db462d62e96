package dialogue

import (
	"context"
	"time"

	"github.com/MegaGrindStone/chat-screen/internal/models"
)

// InputField is the text box the user types into.
type InputField interface {
	Text() string
	SetText(text string)
}

// SubmitControl is the button that triggers a submission.
type SubmitControl interface {
	// OnClick registers the handler invoked on every click. The Screen registers exactly once.
	OnClick(handler func())
	SetEnabled(enabled bool)
}

// Label is a text-bearing element inside an item.
type Label interface {
	SetText(text string)
}

// Node is a named child slot of an item. A node without a label returns ok == false.
type Node interface {
	Label() (Label, bool)
}

// Item is one instantiated dialogue item.
type Item interface {
	Child(name string) (Node, bool)
}

// ItemTemplate instantiates a fresh Item per dialogue entry.
type ItemTemplate interface {
	Instantiate() Item
}

// Container holds the dialogue items in display order. An item that cannot be shown is reported as an
// error and leaves the container unchanged.
type Container interface {
	AddChild(item Item) error
}

// ScrollRegion is the viewport around the container.
type ScrollRegion interface {
	ScrollToBottom(duration time.Duration)
}

// Replier answers submitted text. Implementations must not fail: any problem is expressed as reply
// text (see models.RequestFailed).
type Replier interface {
	Send(ctx context.Context, input string) string
}

// Archive records entries after they were shown.
type Archive interface {
	AddEntry(ctx context.Context, sessionID string, entry models.DialogueEntry) error
}
