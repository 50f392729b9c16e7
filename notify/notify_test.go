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

package notify

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	slackGo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slacktest"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	testToken   = "TEST_TOKEN"
	testChannel = "#random"
	testMaxWait = 5 * time.Second
)

type stringWriter struct {
	mu sync.Mutex
	sb strings.Builder
}

func (w *stringWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.sb.Write(p)
}

func (w *stringWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.sb.String()
}

func TestRealSlack(t *testing.T) {
	token := os.Getenv("XFERD_SLACK_TOKEN")
	channel := os.Getenv("XFERD_SLACK_CHANNEL")

	if token == "" || channel == "" {
		t.Skip("XFERD_SLACK_TOKEN not set or XFERD_SLACK_CHANNEL not set")
	}

	Convey("You can send a message to real slack", t, func() {
		logWriter := &stringWriter{}
		s := New(Config{Token: token, Channel: channel, ErrorLogger: logWriter})

		s.SendMessage(Info, "github.com/wtsi-hgi/xferd notify package test")
		s.Close()

		So(logWriter.String(), ShouldBeBlank)
	})

	Convey("Bad token/channel results in error being logged", t, func() {
		logWriter := &stringWriter{}
		s := New(Config{Token: "non", Channel: "sense", ErrorLogger: logWriter})

		s.SendMessage(Info, "github.com/wtsi-hgi/xferd notify package error test")
		s.Close()

		So(logWriter.String(), ShouldEqual, "invalid_auth")
	})
}

func TestMockSlack(t *testing.T) {
	Convey("You can send different levels of message to a mock slack server", t, func() {
		s, messageChan, dfunc := startMockSlackAndCreateSlack("")
		defer dfunc()

		testMessage := "test message"

		s.SendMessage(Info, testMessage)
		checkMessage(BoxPrefixInfo+testMessage, messageChan)

		s.SendMessage(Warn, testMessage)
		checkMessage(BoxPrefixWarn+testMessage, messageChan)

		s.SendMessage(Error, testMessage)
		checkMessage(BoxPrefixError+testMessage, messageChan)

		s.SendMessage(Success, testMessage)
		checkMessage(BoxPrefixSuccess+testMessage, messageChan)
	})

	Convey("Outcome reports transfer results", t, func() {
		s, messageChan, dfunc := startMockSlackAndCreateSlack("")
		defer dfunc()

		Outcome(s, "spec.json", "abc123", nil)
		checkMessage(BoxPrefixSuccess+"transfer of spec.json [abc123] completed", messageChan)

		Outcome(s, "spec.json", "", errors.New("disk full"))
		checkMessage(BoxPrefixError+"transfer of spec.json failed: disk full", messageChan)

		Outcome(nil, "spec.json", "", nil)
	})

	Convey("Messages are posted in order, with any source", t, func() {
		s, messageChan, dfunc := startMockSlackAndCreateSlack("host1")
		defer dfunc()

		for _, msg := range []string{"one", "two", "three"} {
			s.SendMessage(Info, msg)
		}

		checkMessage(BoxPrefixInfo+"[host1] one", messageChan)
		checkMessage(BoxPrefixInfo+"[host1] two", messageChan)
		checkMessage(BoxPrefixInfo+"[host1] three", messageChan)
	})
}

func TestMock(t *testing.T) {
	Convey("A Mock remembers messages", t, func() {
		m := NewMock()
		Outcome(m, "a", "1", nil)
		m.SendMessage(Warn, "careful")

		So(m.Messages(), ShouldResemble, []string{
			BoxPrefixSuccess + "transfer of a [1] completed",
			BoxPrefixWarn + "careful",
		})
		So(m.String(), ShouldContainSubstring, "careful")
	})
}

func startMockSlackAndCreateSlack(source string) (*Slack, chan *slackGo.MessageEvent, func()) {
	testServer := slacktest.NewTestServer()
	go testServer.Start()

	api := slackGo.New(testToken, slackGo.OptionAPIURL(testServer.GetAPIURL()))
	rtm := api.NewRTM()

	go rtm.ManageConnection()

	messageChan := make(chan (*slackGo.MessageEvent), 1)

	go func() {
		for msg := range rtm.IncomingEvents {
			if ev, ok := msg.Data.(*slackGo.MessageEvent); ok {
				messageChan <- ev
			}
		}
	}()

	s := New(Config{Token: testToken, Channel: testChannel, Source: source, URL: testServer.GetAPIURL()})

	return s, messageChan, func() {
		s.Close()
		testServer.Stop()
	}
}

func checkMessage(expectedMsg string, messageChan chan *slackGo.MessageEvent) {
	select {
	case m := <-messageChan:
		So(m.Channel, ShouldEqual, testChannel)
		So(m.Text, ShouldEqual, expectedMsg)
	case <-time.After(testMaxWait):
		So(false, ShouldBeTrue, "did not get channel message in time")
	}
}
