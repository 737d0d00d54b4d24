package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"shopkeep.ai/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "player name")
		id     = flag.String("id", "", "player uuid (optional; offline identity from name when empty)")
		cmd    = flag.String("cmd", "", "transfer arguments to send after WELCOME, space separated (e.g. \"bob\", \"accept\", \"alice bob\")")
		wait   = flag.Duration("wait", 0, "keep printing notices this long after the command (0: until RESULT, or forever without -cmd)")
		accept = flag.Bool("auto_accept", false, "answer every incoming transfer request with accept")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		PlayerID:        strings.TrimSpace(*id),
		MaxQueue:        16,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	var deadline <-chan time.Time
	if *wait > 0 {
		deadline = time.After(*wait)
	}

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			frames <- msg
		}
	}()

	pending := ""
	for {
		var msg []byte
		select {
		case <-stop:
			return
		case <-deadline:
			return
		case m, ok := <-frames:
			if !ok {
				return
			}
			msg = m
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME player=%s id=%s ttl=%ds", w.PlayerName, w.PlayerID, w.NegotiationTTLSeconds)
			if args := strings.Fields(*cmd); len(args) > 0 {
				pending = send(conn, logger, args)
			}

		case protocol.TypeNotice:
			var n protocol.NoticeMsg
			if err := json.Unmarshal(msg, &n); err != nil {
				continue
			}
			logger.Printf("NOTICE %s: %s", n.Key, n.Text)
			if *accept && n.Key == "transfer-ask" {
				send(conn, logger, []string{"accept"})
			}

		case protocol.TypeResult:
			var r protocol.ResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			if r.OK {
				logger.Printf("RESULT %s ok", r.Ref)
			} else {
				logger.Printf("RESULT %s %s: %s", r.Ref, r.Code, r.Message)
			}
			if r.Ref != "" && r.Ref == pending && *wait == 0 {
				return
			}
		}
	}
}

func send(conn *websocket.Conn, logger *log.Logger, args []string) string {
	ref := uuid.NewString()[:8]
	msg := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ID:              ref,
		Args:            args,
	}
	if err := conn.WriteJSON(msg); err != nil {
		logger.Printf("send CMD: %v", err)
		return ""
	}
	logger.Printf("CMD %s %s", ref, strings.Join(args, " "))
	return ref
}
