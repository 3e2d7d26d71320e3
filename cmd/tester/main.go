package main

import (
	"chat-relay/infrastructure/grpc/client"
	"chat-relay/infrastructure/grpc/server"
	ws "chat-relay/infrastructure/websocket"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gookit/color"
	gws "github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

// Config of the scripted scenario client.
type Config struct {
	RelayURL string `envconfig:"RELAY_URL" default:"ws://localhost:8080/ws"`
	GrpcAddr string `envconfig:"RELAY_GRPC_ADDR" default:"localhost:9090"`
	// TESTER_COLOURS enables colorized output for better readability
	Colours bool          `envconfig:"TESTER_COLOURS" default:"true"`
	Timeout time.Duration `envconfig:"TESTER_TIMEOUT" default:"5s"`
}

type tester struct {
	config Config
	failed int
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	t := &tester{config: config}
	if err := t.run(); err != nil {
		t.fail("scenario aborted: %v", err)
	}
	if t.failed > 0 {
		os.Exit(1)
	}
}

func (t *tester) run() error {
	t.step("Health")
	healthClient, err := client.NewHealthClient(t.config.GrpcAddr)
	if err != nil {
		return err
	}
	defer healthClient.Close()
	ctx, cancel := context.WithTimeout(context.Background(), t.config.Timeout)
	defer cancel()
	serving, err := healthClient.Serving(ctx, server.RelayService)
	if err != nil {
		return err
	}
	t.check(serving, "relay reports SERVING")

	t.step("Room message")
	alice, err := t.dial("alice")
	if err != nil {
		return err
	}
	defer alice.Close()
	bob, err := t.dial("bob")
	if err != nil {
		return err
	}
	defer bob.Close()

	for _, conn := range []*gws.Conn{alice, bob} {
		if err := send(conn, ws.TypeJoinRoom, ws.JoinRoomPayload{Room: "general"}); err != nil {
			return err
		}
		room := "general"
		if err := send(conn, ws.TypeHistory, ws.HistoryPayload{Room: &room}); err != nil {
			return err
		}
		if _, err := t.expect(conn, ws.TypeHistory); err != nil {
			return err
		}
	}

	text := fmt.Sprintf("hi at %s", time.Now().Format(time.Kitchen))
	if err := send(alice, ws.TypeRoomMessage, ws.RoomMessagePayload{Room: "general", Text: &text}); err != nil {
		return err
	}
	for name, conn := range map[string]*gws.Conn{"alice": alice, "bob": bob} {
		raw, err := t.expect(conn, ws.TypeRoomMessage)
		if err != nil {
			return err
		}
		var msg ws.MessageOut
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		t.check(msg.Text == text && msg.Username == "alice", "%s received the room message", name)
	}

	t.step("Private message")
	secret := "just between us"
	if err := send(alice, ws.TypePrivateMessage, ws.PrivateMessagePayload{To: "bob", Text: &secret}); err != nil {
		return err
	}
	raw, err := t.expect(bob, ws.TypePrivateMessage)
	if err != nil {
		return err
	}
	var pm ws.PrivateMessageOut
	if err := json.Unmarshal(raw, &pm); err != nil {
		return err
	}
	t.check(pm.From == "alice" && pm.Text == secret, "bob received the private message")

	t.step("Malformed event")
	if err := send(alice, ws.TypePrivateMessage, ws.PrivateMessagePayload{Text: &secret}); err != nil {
		return err
	}
	raw, err = t.expect(alice, "error")
	if err != nil {
		return err
	}
	var failure ws.ErrorOut
	if err := json.Unmarshal(raw, &failure); err != nil {
		return err
	}
	t.check(failure.Code == ws.CodeMalformedEvent, "missing recipient is rejected (%s)", failure.Code)
	return nil
}

func (t *tester) dial(username string) (*gws.Conn, error) {
	u, err := url.Parse(t.config.RelayURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()
	conn, _, err := gws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s as %s: %w", t.config.RelayURL, username, err)
	}
	return conn, nil
}

func send(conn *gws.Conn, typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(ws.Envelope{Type: typ, Payload: raw})
}

// expect skips frames until one of type typ arrives.
func (t *tester) expect(conn *gws.Conn, typ string) (json.RawMessage, error) {
	if err := conn.SetReadDeadline(time.Now().Add(t.config.Timeout)); err != nil {
		return nil, err
	}
	for {
		var env ws.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", typ, err)
		}
		if env.Type == typ {
			return env.Payload, nil
		}
	}
}

func (t *tester) step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if t.config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)
}

func (t *tester) check(ok bool, format string, args ...any) {
	if !ok {
		t.fail(format, args...)
		return
	}
	line := "  ✔ " + fmt.Sprintf(format, args...)
	if t.config.Colours {
		line = color.FgGreen.Render(line)
	}
	fmt.Println(line)
}

func (t *tester) fail(format string, args ...any) {
	t.failed++
	line := "  ✘ " + fmt.Sprintf(format, args...)
	if t.config.Colours {
		line = color.FgRed.Render(line)
	}
	fmt.Println(line)
}
