/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

// package notify sends messages about transfers to Slack.

package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	slackGo "github.com/slack-go/slack"
)

const (
	BoxPrefixInfo    = "⬜️ "
	BoxPrefixWarn    = "🟧 "
	BoxPrefixError   = "🟥 "
	BoxPrefixSuccess = "🟩 "
)

type Level int

const (
	Info Level = iota
	Warn
	Error
	Success
)

// Notifier is something that can send messages somewhere.
type Notifier interface {
	SendMessage(level Level, msg string)
}

// Config provides configuration for a Slack.
type Config struct {
	// Token is the bot token of your slack application, which needs the
	// chat:write and chat:write.public scopes.
	Token string

	// Channel is the ID of the channel to post to.
	Channel string

	// Source, if set, is shown in brackets at the start of every message, eg.
	// the host a server runs on.
	Source string

	// URL is only needed when testing against a local mock slack server.
	URL string

	// ErrorLogger receives any errors from sending, since SendMessage() doesn't
	// return them.
	ErrorLogger io.Writer
}

const queueSize = 64

// Slack is a Notifier that posts messages to a Slack channel, in the order
// they were sent.
type Slack struct {
	api     *slackGo.Client
	channel string
	source  string
	logger  io.Writer
	queue   chan string
	wg      sync.WaitGroup
}

// New returns a Slack configured by the given Config. Call Close() when done
// with it.
func New(config Config) *Slack {
	var options []slackGo.Option
	if config.URL != "" {
		options = append(options, slackGo.OptionAPIURL(config.URL))
	}

	s := &Slack{
		api:     slackGo.New(config.Token, options...),
		channel: config.Channel,
		source:  config.Source,
		logger:  config.ErrorLogger,
		queue:   make(chan string, queueSize),
	}

	go s.post()

	return s
}

func (s *Slack) post() {
	for text := range s.queue {
		_, _, err := s.api.PostMessage(s.channel, slackGo.MsgOptionText(text, false))
		if s.logger != nil && err != nil {
			s.logger.Write([]byte(err.Error())) //nolint:errcheck
		}

		s.wg.Done()
	}
}

// SendMessage queues the given message for posting to our channel, prefixed
// with a coloured box for its level. It only blocks if lots of messages are
// already queued.
func (s *Slack) SendMessage(level Level, msg string) {
	s.wg.Add(1)
	s.queue <- format(level, s.source, msg)
}

// Wait waits for all queued messages to be posted.
func (s *Slack) Wait() {
	s.wg.Wait()
}

// Close waits for queued messages to be posted, then stops. Don't send any
// more messages after calling this.
func (s *Slack) Close() {
	s.Wait()
	close(s.queue)
}

func format(level Level, source, msg string) string {
	if source != "" {
		msg = "[" + source + "] " + msg
	}

	return levelToPrefix(level) + msg
}

func levelToPrefix(level Level) string {
	switch level {
	case Info:
		return BoxPrefixInfo
	case Warn:
		return BoxPrefixWarn
	case Error:
		return BoxPrefixError
	case Success:
		return BoxPrefixSuccess
	}

	return ""
}

// Outcome sends a message about how a transfer ended: Success if err is nil,
// otherwise Error with the reason.
func Outcome(n Notifier, origin, transferID string, err error) {
	if n == nil {
		return
	}

	name := origin
	if transferID != "" {
		name = fmt.Sprintf("%s [%s]", origin, transferID)
	}

	if err != nil {
		n.SendMessage(Error, fmt.Sprintf("transfer of %s failed: %s", name, err))

		return
	}

	n.SendMessage(Success, fmt.Sprintf("transfer of %s completed", name))
}

// Mock is a Notifier that remembers the messages it is sent.
type Mock struct {
	mu   sync.Mutex
	msgs []string
}

// NewMock returns a new Mock.
func NewMock() *Mock {
	return &Mock{}
}

// SendMessage records the message with its level prefix.
func (m *Mock) SendMessage(level Level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.msgs = append(m.msgs, format(level, "", msg))
}

// Messages returns the messages sent so far.
func (m *Mock) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.msgs...)
}

// String returns all messages sent so far, one per line.
func (m *Mock) String() string {
	return strings.Join(m.Messages(), "\n")
}
