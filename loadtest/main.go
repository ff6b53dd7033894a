// Command loadtest drives pairs of pre-provisioned, verified accounts through
// login, room join and a burst of chat messages over the websocket relay.
//
// Accounts are expected as vepari<N>@<domain> and factory<N>@<domain> for
// N in [0, pairs), all sharing one password.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"designguard/internal/chat"
	"designguard/internal/user"
)

var (
	baseURL  = flag.String("base", "http://localhost:8080", "API base URL")
	pairs    = flag.Int("pairs", 50, "number of vepari/factory pairs")
	msgCount = flag.Int("msgs", 20, "messages sent by each user")
	domain   = flag.String("domain", "loadtest.local", "email domain of the test accounts")
	password = flag.String("password", "password123", "shared password of the test accounts")
	// The relay allows 30 messages per 10 seconds per user.
	interval = flag.Duration("interval", 400*time.Millisecond, "delay between messages from one user")
)

type pair struct {
	VepariID  int64 `json:"vepariId"`
	FactoryID int64 `json:"factoryId"`
}

type outgoing struct {
	Message   string `json:"message"`
	VepariID  int64  `json:"vepariId"`
	FactoryID int64  `json:"factoryId"`
}

type stats struct {
	sent     atomic.Int64
	received atomic.Int64
	errors   atomic.Int64
}

func main() {
	flag.Parse()
	log, _ := zap.NewDevelopment()
	defer log.Sync()

	log.Info("starting load test", zap.Int("users", *pairs*2), zap.Int("msgs_per_user", *msgCount))
	var (
		wg sync.WaitGroup
		st stats
	)
	start := time.Now()
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runPair(log.With(zap.Int("pair", n)), n, &st)
		}(i)
	}
	wg.Wait()

	log.Info("load test complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("sent", st.sent.Load()),
		zap.Int64("received", st.received.Load()),
		zap.Int64("errors", st.errors.Load()))
}

func runPair(log *zap.Logger, n int, st *stats) {
	vepari, err := login(fmt.Sprintf("vepari%d@%s", n, *domain))
	if err != nil {
		log.Warn("vepari login failed", zap.Error(err))
		st.errors.Add(1)
		return
	}
	factory, err := login(fmt.Sprintf("factory%d@%s", n, *domain))
	if err != nil {
		log.Warn("factory login failed", zap.Error(err))
		st.errors.Add(1)
		return
	}

	join := pair{VepariID: vepari.User.ID, FactoryID: factory.User.ID}
	var wg sync.WaitGroup
	for _, acct := range []*user.LoginResponse{vepari, factory} {
		wg.Add(1)
		go func(acct *user.LoginResponse) {
			defer wg.Done()
			chatter(log.With(zap.String("email", acct.User.Email)), acct.Token, join, st)
		}(acct)
	}
	wg.Wait()
}

func login(email string) (*user.LoginResponse, error) {
	body, _ := json.Marshal(user.LoginRequest{Email: email, Password: *password})
	resp, err := http.Post(*baseURL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login %s: status %d", email, resp.StatusCode)
	}
	var out user.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func send(conn *websocket.Conn, event string, data any) error {
	frame, err := chat.Encode(event, data)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func chatter(log *zap.Logger, token string, join pair, st *stats) {
	wsURL := strings.Replace(*baseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Warn("websocket dial failed", zap.Error(err))
		st.errors.Add(1)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env chat.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			switch env.Event {
			case chat.EventReceiveMessage:
				st.received.Add(1)
			case chat.EventError:
				st.errors.Add(1)
				log.Debug("relay error", zap.ByteString("data", env.Data))
			}
		}
	}()

	if err := send(conn, chat.EventJoinRoom, join); err != nil {
		st.errors.Add(1)
		return
	}
	for i := 0; i < *msgCount; i++ {
		msg := outgoing{
			Message:   fmt.Sprintf("load test message %d", i),
			VepariID:  join.VepariID,
			FactoryID: join.FactoryID,
		}
		if err := send(conn, chat.EventSendMessage, msg); err != nil {
			log.Warn("send failed", zap.Error(err))
			st.errors.Add(1)
			break
		}
		st.sent.Add(1)
		time.Sleep(*interval)
	}

	// Let the last broadcasts arrive before closing.
	time.Sleep(time.Second)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
