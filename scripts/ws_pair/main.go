// Smoke client: grabs a guest token, connects to /ws, searches for a partner
// and chats from stdin. Run two instances against one server to get paired.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/pairchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_pair: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, loginID, err := guestToken(ctx, *server)
	if err != nil {
		return fmt.Errorf("guest token: %w", err)
	}
	fmt.Printf("Connected as %s\n", loginID)

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSearch}); err != nil {
		return fmt.Errorf("send search: %w", err)
	}
	fmt.Println("Searching for a partner. Type messages once matched, /leave to close, Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func guestToken(ctx context.Context, server string) (token, loginID string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/guest", bytes.NewReader(nil))
	if err != nil {
		return "", "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body struct {
		Token   string `json:"token"`
		LoginID string `json:"login_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", err
	}
	return body.Token, body.LoginID, nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			fmt.Printf("error %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}

		switch outbound.Event {
		case proto.EventMatched:
			var evt proto.MatchedData
			if err := reencode(outbound.Data, &evt); err != nil {
				log.Printf("decode matched: %v", err)
				continue
			}
			fmt.Printf("Matched into chat %d with %v\n", evt.Chat, evt.Members)
		case proto.EventMessage:
			var evt proto.MessageData
			if err := reencode(outbound.Data, &evt); err != nil {
				log.Printf("decode message: %v", err)
				continue
			}
			fmt.Printf("[chat %d] %s: %s\n", evt.Chat, evt.From, evt.Text)
		case proto.EventPartnerLeft:
			var evt proto.PartnerLeftData
			if err := reencode(outbound.Data, &evt); err != nil {
				log.Printf("decode partner_left: %v", err)
				continue
			}
			fmt.Printf("[chat %d] %s left\n", evt.Chat, evt.User)
		case proto.EventChatClosed:
			var evt proto.ChatClosedData
			if err := reencode(outbound.Data, &evt); err != nil {
				log.Printf("decode chat_closed: %v", err)
				continue
			}
			fmt.Printf("Chat %d closed\n", evt.Chat)
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Event, outbound.Data)
		}
	}
}

// reencode round-trips the untyped event data into a concrete struct.
func reencode(data any, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if text == "/leave" {
				if err := sendInbound(ctx, conn, proto.InboundTypeLeave, proto.LeaveData{}); err != nil {
					log.Printf("send leave: %v", err)
					return
				}
				continue
			}

			if err := sendInbound(ctx, conn, proto.InboundTypeMsg, proto.MsgData{Text: text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

func sendInbound(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload})
}
