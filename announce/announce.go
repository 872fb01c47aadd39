// Package announce posts relay handoff messages to a Twitch chat channel.
// The announcer is optional; when unconfigured every call is a no-op.
package announce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/cma2819/relaying-raids/config"
	"github.com/cma2819/relaying-raids/relay"
)

// Announcer maintains a persistent IRC connection to the configured channel
// and exposes fire-and-forget announcement helpers.
type Announcer struct {
	channel string

	mu        sync.Mutex
	client    *twitch.Client
	connected bool
}

// New builds an announcer from config. Returns nil (announcements disabled)
// when the announcer env is unset.
func New(cfg *config.Config) *Announcer {
	if err := cfg.ValidateAnnouncerReady(); err != nil {
		slog.Info("chat announcer disabled", slog.Any("reason", err))
		return nil
	}
	return &Announcer{
		channel: cfg.AnnounceChannel,
		client:  twitch.NewClient(cfg.AnnounceBotUsername, cfg.AnnounceBotToken),
	}
}

// Run connects and blocks until ctx is done. Intended to run in its own
// goroutine; a nil receiver returns immediately.
func (a *Announcer) Run(ctx context.Context) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = a.client.Disconnect()
		close(done)
	}()

	a.client.Join(a.channel)
	if err := a.client.Connect(); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
	}
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	<-done
}

func (a *Announcer) say(msg string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return
	}
	a.client.Say(a.channel, msg)
}

// Handoff announces a completed raid from one participant to the next.
func (a *Announcer) Handoff(ev *relay.Event, from, to relay.Submission) {
	a.say(handoffMessage(ev, from, to))
}

// Skip announces that a participant passed the baton without raiding.
func (a *Announcer) Skip(ev *relay.Event, from, to relay.Submission) {
	a.say(skipMessage(ev, from, to))
}

// Finished announces the relay reaching its final participant.
func (a *Announcer) Finished(ev *relay.Event, last relay.Submission) {
	a.say(finishedMessage(ev, last))
}

func handoffMessage(ev *relay.Event, from, to relay.Submission) string {
	return fmt.Sprintf("[%s] %s raided into %s! Next up: twitch.tv/%s", ev.Name, from.Name, to.Name, to.Twitch)
}

func skipMessage(ev *relay.Event, from, to relay.Submission) string {
	return fmt.Sprintf("[%s] %s passed the baton to %s. Next up: twitch.tv/%s", ev.Name, from.Name, to.Name, to.Twitch)
}

func finishedMessage(ev *relay.Event, last relay.Submission) string {
	return fmt.Sprintf("[%s] %s is the final runner. That's the relay!", ev.Name, last.Name)
}
