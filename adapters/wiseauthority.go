package adapters

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/core"
)

// CLIWiseAuthority routes a DEFER to the operator's terminal and blocks
// for a free-text reply as guidance, the single-operator analogue of
// the spec's deferral-channel escalation.
type CLIWiseAuthority struct {
	comm    *CLICommunication
	timeout time.Duration
}

func NewCLIWiseAuthority(comm *CLICommunication, timeout time.Duration) *CLIWiseAuthority {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &CLIWiseAuthority{comm: comm, timeout: timeout}
}

func (w *CLIWiseAuthority) FetchGuidance(ctx context.Context, request string) (string, error) {
	_ = w.comm.SendMessage(ctx, cliChannel, "guidance requested: "+request)
	type result struct {
		line string
		ok   bool
	}
	ch := make(chan result, 1)
	go func() {
		line, ok := w.comm.ReadLine()
		ch <- result{line, ok}
	}()
	select {
	case r := <-ch:
		if !r.ok {
			return "", core.NewError("adapters.CLIWiseAuthority.FetchGuidance", "io", core.ErrTimeout)
		}
		return r.line, nil
	case <-time.After(w.timeout):
		return "", core.NewError("adapters.CLIWiseAuthority.FetchGuidance", "timeout", core.ErrTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *CLIWiseAuthority) SendDeferral(ctx context.Context, thoughtID, reason string) error {
	return w.comm.SendMessage(ctx, cliChannel, "DEFERRED thought "+thoughtID+": "+reason)
}

// DiscordWiseAuthority posts a deferral to the configured deferral
// channel; like DiscordCommunication, it has no transport wired in
// this build and fails closed.
type DiscordWiseAuthority struct {
	comm *DiscordCommunication
}

func NewDiscordWiseAuthority(comm *DiscordCommunication) *DiscordWiseAuthority {
	return &DiscordWiseAuthority{comm: comm}
}

func (w *DiscordWiseAuthority) FetchGuidance(ctx context.Context, request string) (string, error) {
	return "", core.NewError("adapters.DiscordWiseAuthority.FetchGuidance", "configuration", core.ErrMissingConfiguration)
}

func (w *DiscordWiseAuthority) SendDeferral(ctx context.Context, thoughtID, reason string) error {
	return w.comm.SendMessage(ctx, w.comm.DeferralChannelID, "DEFERRED thought "+thoughtID+": "+reason)
}
