// Command loadtest drives pairs of members exchanging direct messages over
// the websocket against a running server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"teamhq/internal/chat"
	"teamhq/internal/logging"
	"teamhq/internal/member"
)

var (
	baseURL  = pflag.String("base-url", "http://localhost:8080", "server base URL")
	pairs    = pflag.Int("pairs", 50, "member pairs; start small, the database might choke on 1000 immediately")
	msgCount = pflag.Int("messages", 20, "messages per member")
	pause    = pflag.Duration("pause", 10*time.Millisecond, "delay between sends")
)

var (
	sent     atomic.Int64
	received atomic.Int64
	failed   atomic.Int64
)

func main() {
	pflag.Parse()
	logging.Init(logging.Config{Level: "info", Format: "console", Output: os.Stderr})
	log := logging.Component("loadtest")

	log.Info().Int("members", *pairs*2).Int("messages", *msgCount).Msg("starting stress test")
	start := time.Now()

	// Member 0a talks to 0b, 1a to 1b...
	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Info().
		Int64("sent", sent.Load()).
		Int64("received", received.Load()).
		Int64("failed", failed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("load test complete")
}

func runPair(pairID int) {
	log := logging.Component("loadtest")
	a, err := authenticate(fmt.Sprintf("lt-%d-a", pairID))
	if err != nil {
		log.Error().Err(err).Int("pair", pairID).Msg("auth failed")
		failed.Add(1)
		return
	}
	b, err := authenticate(fmt.Sprintf("lt-%d-b", pairID))
	if err != nil {
		log.Error().Err(err).Int("pair", pairID).Msg("auth failed")
		failed.Add(1)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatWith(&wsWg, a, b.ID)
	go chatWith(&wsWg, b, a.ID)
	wsWg.Wait()
}

// authenticate registers (ignoring a duplicate) and logs in.
func authenticate(name string) (*member.LoginResponse, error) {
	email := name + "@loadtest.local"
	const password = "password123"

	if resp, err := postJSON("/register", member.RegisterRequest{Name: name, Email: email, Password: password}); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/login", member.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login %s: %s", name, resp.Status)
	}
	var data member.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func chatWith(wg *sync.WaitGroup, me *member.LoginResponse, peerID string) {
	defer wg.Done()
	log := logging.WithMember("loadtest", me.ID)

	wsURL := strings.Replace(*baseURL, "http", "ws", 1) + "/ws?token=" + me.AccessToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket connect failed")
		failed.Add(1)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f chat.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == "message" && f.Message != nil && f.Message.AuthorID == peerID {
				received.Add(1)
			}
		}
	}()

	if err := conn.WriteJSON(chat.Command{Type: "select_direct", PeerID: peerID}); err != nil {
		failed.Add(1)
		return
	}
	for i := 0; i < *msgCount; i++ {
		body := fmt.Sprintf("load test message %d from %s", i, me.Name)
		if err := conn.WriteJSON(chat.Command{Type: "send", Body: body}); err != nil {
			log.Error().Err(err).Msg("send failed")
			failed.Add(1)
			break
		}
		sent.Add(1)
		// Simulate real network pacing instead of an instant localhost burst.
		time.Sleep(*pause)
	}

	// Give the peer's last messages time to arrive.
	time.Sleep(time.Second)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	log.Debug().Int("messages", *msgCount).Msg("finished")
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewReader(payload))
}
