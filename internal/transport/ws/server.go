package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"citycore/internal/logging"
	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world"
)

// Per-connection request budget. Movement is sent every frame, so the burst
// covers a client running well above the tick rate.
const (
	DefaultRequestsPerSecond = 60
	DefaultRequestBurst      = 120
)

type Server struct {
	world     *world.World
	validator *protocol.Validator
	log       logrus.FieldLogger

	upgrader websocket.Upgrader

	RequestsPerSecond float64
	RequestBurst      int
}

func NewServer(w *world.World, v *protocol.Validator, log logrus.FieldLogger) *Server {
	return &Server{
		world:     w,
		validator: v,
		log:       logging.Component(log, "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		RequestsPerSecond: DefaultRequestsPerSecond,
		RequestBurst:      DefaultRequestBurst,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := s.handshake(conn)
		if id == "" {
			return
		}
		log := s.log.WithField("conn", id)
		log.WithField("remote", r.RemoteAddr).Info("client connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// The world closes out when another socket takes the session over.
		var superseded atomic.Bool

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						superseded.Store(true)
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session taken over"), time.Now().Add(time.Second))
						_ = conn.Close()
						cancel()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(s.RequestsPerSecond), s.RequestBurst)
		dropped := 0

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			req, ok := s.decodeRequest(log, msg)
			if !ok {
				continue
			}
			if !limiter.Allow() {
				dropped++
				if dropped%100 == 1 {
					log.WithField("dropped", dropped).Warn("request rate exceeded")
				}
				continue
			}
			select {
			case s.world.Inbox() <- world.Envelope{Conn: entity.ConnID(id), Req: req}:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		if superseded.Load() {
			log.Info("client replaced")
			return
		}
		s.world.Leave() <- entity.ConnID(id)
		log.Info("client disconnected")
	}
}

// decodeRequest drops anything that is not a schema-valid REQ for this
// protocol version. Nothing is reported back to the client.
func (s *Server) decodeRequest(log logrus.FieldLogger, msg []byte) (protocol.RequestMsg, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeReq {
		return protocol.RequestMsg{}, false
	}
	if s.validator != nil {
		if err := s.validator.ValidateRequest(msg); err != nil {
			log.WithError(err).Debug("request rejected by schema")
			return protocol.RequestMsg{}, false
		}
	}
	var req protocol.RequestMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return protocol.RequestMsg{}, false
	}
	if req.ProtocolVersion != protocol.Version {
		return protocol.RequestMsg{}, false
	}
	return req, true
}

func (s *Server) handshake(conn *websocket.Conn) (id string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	if s.validator != nil {
		if err := s.validator.ValidateHello(msg); err != nil {
			s.log.WithError(err).Debug("hello rejected by schema")
			closeWith(conn, "invalid HELLO")
			return "", nil
		}
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	// Optional: resume an existing session (reconnect).
	resumeToken := ""
	if hello.Auth != nil {
		resumeToken = strings.TrimSpace(hello.Auth.Token)
	}

	var resp world.JoinResponse
	if resumeToken != "" {
		respCh := make(chan world.JoinResponse, 1)
		s.world.Attach() <- world.AttachRequest{
			ResumeToken: resumeToken,
			Out:         out,
			Resp:        respCh,
		}
		resp = <-respCh
	}
	if resp.Welcome.ConnectionID == "" {
		// Fresh join.
		respCh := make(chan world.JoinResponse, 1)
		s.world.Join() <- world.JoinRequest{
			PlayerID: hello.PlayerID,
			Name:     hello.DisplayName,
			Out:      out,
			Resp:     respCh,
		}
		resp = <-respCh
	}
	if resp.Refused != "" {
		s.log.WithField("player_id", hello.PlayerID).Info("join refused")
		closeWith(conn, resp.Refused)
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.Welcome.ConnectionID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
