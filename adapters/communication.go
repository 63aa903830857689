package adapters

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/google/uuid"
)

// CLICommunication is the terminal-backed Communication capability for
// --mode cli: SendMessage prints to stdout, FetchMessages returns the
// most recent lines ReadLine has appended from stdin. There is one
// channel, "cli", matching a single interactive session.
type CLICommunication struct {
	mu       sync.Mutex
	messages []Message
	scanner  *bufio.Scanner
}

const cliChannel = "cli"

func NewCLICommunication() *CLICommunication {
	return &CLICommunication{scanner: bufio.NewScanner(os.Stdin)}
}

func (c *CLICommunication) SendMessage(ctx context.Context, channel, content string) error {
	fmt.Println(content)
	return nil
}

// ReadLine blocks for one line of interactive input and records it as
// an inbound message, for --no-interactive=false sessions.
func (c *CLICommunication) ReadLine() (string, bool) {
	if !c.scanner.Scan() {
		return "", false
	}
	line := c.scanner.Text()
	c.mu.Lock()
	c.messages = append(c.messages, Message{ID: uuid.NewString(), Channel: cliChannel, Author: "operator", Content: line, Timestamp: time.Now()})
	c.mu.Unlock()
	return line, true
}

func (c *CLICommunication) FetchMessages(ctx context.Context, channel string, limit int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if limit <= 0 || limit > len(c.messages) {
		limit = len(c.messages)
	}
	start := len(c.messages) - limit
	out := make([]Message, limit)
	copy(out, c.messages[start:])
	return out, nil
}

func (c *CLICommunication) GetDefaultChannel() string { return cliChannel }

// DiscordCommunication is a thin capability shell for --mode discord:
// this build does not vendor a Discord client library (none appears in
// the retrieved stack), so SendMessage/FetchMessages fail closed with a
// configuration error rather than silently no-op, matching the error
// taxonomy's "missing configuration is fatal at startup" rule -- an
// operator pointing --mode at discord without a real client wired in
// finds out immediately, not after a deferral silently vanishes.
type DiscordCommunication struct {
	BotToken          string
	ChannelID         string
	DeferralChannelID string
	logger            core.Logger
}

func NewDiscordCommunication(botToken, channelID, deferralChannelID string, logger core.Logger) (*DiscordCommunication, error) {
	if botToken == "" || channelID == "" {
		return nil, core.NewError("adapters.NewDiscordCommunication", "configuration", core.ErrMissingConfiguration)
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &DiscordCommunication{BotToken: botToken, ChannelID: channelID, DeferralChannelID: deferralChannelID, logger: logger}, nil
}

func (d *DiscordCommunication) SendMessage(ctx context.Context, channel, content string) error {
	return core.NewError("adapters.DiscordCommunication.SendMessage", "configuration", fmt.Errorf("discord transport not wired into this build"))
}

func (d *DiscordCommunication) FetchMessages(ctx context.Context, channel string, limit int) ([]Message, error) {
	return nil, core.NewError("adapters.DiscordCommunication.FetchMessages", "configuration", fmt.Errorf("discord transport not wired into this build"))
}

func (d *DiscordCommunication) GetDefaultChannel() string { return d.ChannelID }
