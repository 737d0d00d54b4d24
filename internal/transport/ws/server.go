package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"shopkeep.ai/internal/protocol"
	"shopkeep.ai/internal/transfer/model"
	"shopkeep.ai/internal/transfer/negotiation"
)

// Commands executes and completes /transfer arguments for a player.
type Commands interface {
	Execute(ctx context.Context, sender model.Actor, args []string) error
	Complete(args []string) []string
}

type Options struct {
	// MaxQueue bounds each session's outbound queue (default 32).
	MaxQueue int
	// NegotiationTTL is advertised in WELCOME.
	NegotiationTTL time.Duration
	// OnJoin runs after a valid HELLO and before WELCOME; an error refuses the login.
	OnJoin func(ctx context.Context, player model.Actor) error
	// Code maps a command error to a protocol error code.
	Code func(error) string
}

type Server struct {
	hub  *Hub
	cmds Commands
	log  *log.Logger
	opts Options

	upgrader websocket.Upgrader

	cmdTotal      atomic.Uint64
	rejectedTotal atomic.Uint64
}

func NewServer(hub *Hub, cmds Commands, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = 32
	}
	if opts.Code == nil {
		opts.Code = negotiation.Code
	}
	return &Server{
		hub:  hub,
		cmds: cmds,
		log:  logger,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Counters reports commands handled and frames rejected before dispatch.
func (s *Server) Counters() (commands, rejected uint64) {
	return s.cmdTotal.Load(), s.rejectedTotal.Load()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess, welcome := s.handshake(r.Context(), conn)
		if sess == nil {
			return
		}
		// Attach before WELCOME so a client that has seen WELCOME is reachable.
		s.hub.attach(sess)
		defer s.hub.detach(sess)
		if err := writeJSON(conn, welcome); err != nil {
			return
		}
		s.log.Printf("join %s (%s) session=%s", sess.actor.Name, sess.actor.ID, sess.id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(25 * time.Second)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-sess.kicked:
					closeWith(conn, websocket.ClosePolicyViolation, "replaced by a newer session")
					_ = conn.Close()
					cancel()
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						cancel()
						return
					}
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		})

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(ctx, sess, msg)
		}
		s.log.Printf("leave %s session=%s", sess.actor.Name, sess.id)
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.reject(sess, "", "bad json")
		return
	}
	if base.Type != protocol.TypeCmd && base.Type != protocol.TypeComplete {
		s.reject(sess, "", "unexpected message type "+base.Type)
		return
	}
	if err := protocol.ValidateFrame(protocol.SchemaCmd, msg); err != nil {
		s.reject(sess, "", err.Error())
		return
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		s.reject(sess, "", "bad json")
		return
	}
	if cmd.ProtocolVersion != protocol.Version {
		s.reject(sess, cmd.ID, "bad protocol_version")
		return
	}

	if base.Type == protocol.TypeComplete {
		s.send(sess, protocol.CompletionsMsg{
			Type:            protocol.TypeCompletions,
			ProtocolVersion: protocol.Version,
			Ref:             cmd.ID,
			Options:         s.cmds.Complete(cmd.Args),
		})
		return
	}

	s.cmdTotal.Add(1)
	// Commands may wait on name lookup or the commit loop; run each on its own
	// goroutine so the reader keeps draining frames.
	go func() {
		err := s.cmds.Execute(ctx, sess.actor, cmd.Args)
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		s.send(sess, protocol.NewResult(cmd.ID, s.opts.Code(err), msg))
	}()
}

func (s *Server) reject(sess *session, ref, reason string) {
	s.rejectedTotal.Add(1)
	s.send(sess, protocol.NewResult(ref, protocol.ErrProtoBadRequest, reason))
}

func (s *Server) send(sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("marshal %T: %v", v, err)
		return
	}
	if !enqueue(sess, b) {
		s.log.Printf("drop frame for %s: queue full", sess.actor.Name)
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*session, protocol.WelcomeMsg) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, protocol.WelcomeMsg{}
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return nil, protocol.WelcomeMsg{}
	}
	if err := protocol.ValidateFrame(protocol.SchemaHello, msg); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return nil, protocol.WelcomeMsg{}
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, protocol.WelcomeMsg{}
	}
	if hello.ProtocolVersion != protocol.Version && !slices.Contains(hello.SupportedVersions, protocol.Version) {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return nil, protocol.WelcomeMsg{}
	}

	actor := model.Actor{Name: hello.PlayerName}
	if id := strings.TrimSpace(hello.PlayerID); id != "" {
		actor.ID, err = model.ParseIdentity(id)
		if err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad player_id")
			return nil, protocol.WelcomeMsg{}
		}
	} else {
		actor.ID = model.OfflineIdentity(hello.PlayerName)
	}

	if s.opts.OnJoin != nil {
		if err := s.opts.OnJoin(ctx, actor); err != nil {
			s.log.Printf("join %s refused: %v", actor.Name, err)
			closeWith(conn, websocket.CloseInternalServerErr, "join failed")
			return nil, protocol.WelcomeMsg{}
		}
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 || maxQ > s.opts.MaxQueue {
		maxQ = s.opts.MaxQueue
	}
	sess := &session{
		id:     uuid.NewString(),
		actor:  actor,
		out:    make(chan []byte, maxQ),
		kicked: make(chan struct{}),
	}

	welcome := protocol.WelcomeMsg{
		Type:                  protocol.TypeWelcome,
		ProtocolVersion:       protocol.Version,
		SessionID:             sess.id,
		PlayerID:              actor.ID.String(),
		PlayerName:            actor.Name,
		NegotiationTTLSeconds: int(s.opts.NegotiationTTL / time.Second),
	}
	return sess, welcome
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
