package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/protocol"
)

// Config is the behaviour of the mock server
type Config struct {
	QueueTimeout          time.Duration // 0 disables MATCHMAKING_TIMEOUT
	QueueUpdates          bool          // send QUEUE_UPDATE to players left waiting
	MaxRatingGap          int           // 0 pairs any two players
	Rounds                int
	RoundTimeout          time.Duration // how long a round waits for both answers
	RoundGap              time.Duration // pause between ROUND_RESULT and the next GAME_STATE
	Options               []string      // plant options; the first one is correct
	Silent                bool          // no diagnostic replies and no ERROR frames
	DropAfterAuthenticate bool          // close every connection right after AUTHENTICATE
}

// DefaultConfig returns a configuration suitable for tests
func DefaultConfig() Config {
	return Config{
		QueueTimeout: 30 * time.Second,
		QueueUpdates: true,
		Rounds:       5,
		RoundTimeout: 2 * time.Second,
		RoundGap:     10 * time.Millisecond,
		Options:      []string{"Rose", "Tulip", "Daisy", "Orchid"},
	}
}

// Stats counts what the server has seen
type Stats struct {
	Connections    uint64 `json:"connections"`
	Authenticated  uint64 `json:"authenticated"`
	Matches        uint64 `json:"matches"`
	QueueTimeouts  uint64 `json:"queue_timeouts"`
	GamesCompleted uint64 `json:"games_completed"`
	Errors         uint64 `json:"errors"`
}

// Server is the mock battle server
type Server struct {
	config Config

	mu       sync.Mutex
	sessions map[string]*session
	queue    []*session
	games    map[string]*game

	connections    atomic.Uint64
	authenticated  atomic.Uint64
	matches        atomic.Uint64
	queueTimeouts  atomic.Uint64
	gamesCompleted atomic.Uint64
	errorsSent     atomic.Uint64

	wg sync.WaitGroup
}

// session is one websocket connection
type session struct {
	ws     *websocket.Conn
	sendMu sync.Mutex
	closed atomic.Bool

	playerID string
	rating   int
	queued   time.Time
	gameID   string
}

// New creates a mock server
func New(config Config) *Server {
	if config.Rounds <= 0 {
		config.Rounds = 5
	}
	if config.RoundTimeout <= 0 {
		config.RoundTimeout = 2 * time.Second
	}
	if len(config.Options) == 0 {
		config.Options = DefaultConfig().Options
	}
	return &Server{
		config:   config,
		sessions: make(map[string]*session),
		games:    make(map[string]*game),
	}
}

// Handler returns the websocket handler
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.serveConn)
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("mock", "Mock battle server listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Wait()
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Wait blocks until all running games have finished
func (s *Server) Wait() {
	s.wg.Wait()
}

// Stats returns the counters
func (s *Server) Stats() Stats {
	return Stats{
		Connections:    s.connections.Load(),
		Authenticated:  s.authenticated.Load(),
		Matches:        s.matches.Load(),
		QueueTimeouts:  s.queueTimeouts.Load(),
		GamesCompleted: s.gamesCompleted.Load(),
		Errors:         s.errorsSent.Load(),
	}
}

// QueueLength returns the number of waiting players
func (s *Server) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Server) serveConn(ws *websocket.Conn) {
	s.connections.Add(1)
	sess := &session{ws: ws}
	defer s.disconnect(sess)

	for {
		var frame string
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			return
		}
		if !s.handle(sess, []byte(frame)) {
			return
		}
	}
}

// handle dispatches one frame. It returns false when the connection should close.
func (s *Server) handle(sess *session, frame []byte) bool {
	msg, err := protocol.Decode(frame)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrUnknownType):
			s.sendError(sess, "Unknown message type")
		default:
			s.sendError(sess, "Invalid JSON")
		}
		return true
	}

	switch m := msg.(type) {
	case protocol.Authenticate:
		s.authenticate(sess, m)
		return !s.config.DropAfterAuthenticate
	case protocol.StartMatchmaking:
		s.enqueue(sess)
	case protocol.SubmitAnswer:
		s.answer(sess, m)
	case protocol.Ping:
		s.reply(sess, protocol.Ping{})
	case protocol.EchoRequest:
		raw, _ := json.Marshal(m)
		s.reply(sess, protocol.Ack{Kind: protocol.TypeEchoResponse, Raw: raw})
	case protocol.ThroughputTest:
		raw, _ := json.Marshal(map[string]int{"messageId": m.MessageID})
		s.reply(sess, protocol.Ack{Kind: protocol.TypeThroughputAck, Raw: raw})
	case protocol.LargeMessageTest:
		raw, _ := json.Marshal(map[string]int{"size": len(m.Content)})
		s.reply(sess, protocol.Ack{Kind: protocol.TypeLargeMessageAck, Raw: raw})
	default:
		s.sendError(sess, fmt.Sprintf("Unexpected message type %s", msg.Type()))
	}
	return true
}

// reply sends a diagnostic answer unless the server is silent
func (s *Server) reply(sess *session, m protocol.Message) {
	if s.config.Silent {
		return
	}
	s.send(sess, m)
}

func (s *Server) sendError(sess *session, text string) {
	if s.config.Silent {
		return
	}
	s.errorsSent.Add(1)
	s.send(sess, protocol.ErrorMessage{Error: text})
}

func (s *Server) send(sess *session, m protocol.Message) {
	if sess == nil || sess.closed.Load() {
		return
	}
	frame, err := protocol.Encode(m)
	if err != nil {
		return
	}

	sess.sendMu.Lock()
	defer sess.sendMu.Unlock()
	if err := websocket.Message.Send(sess.ws, string(frame)); err != nil {
		sess.closed.Store(true)
	}
}

func (s *Server) authenticate(sess *session, m protocol.Authenticate) {
	s.authenticated.Add(1)

	s.mu.Lock()
	sess.playerID = m.PlayerID
	sess.rating = m.Rating
	prev := s.sessions[m.PlayerID]
	s.sessions[m.PlayerID] = sess

	var g *game
	if prev != nil && prev != sess && prev.gameID != "" {
		g = s.games[prev.gameID]
	}
	if g != nil {
		sess.gameID = g.id
	}
	s.mu.Unlock()

	if g != nil {
		g.rebind(s, m.PlayerID, sess)
		logger.Debug("mock", "Player %s re-joined game %s", m.PlayerID, g.id)
	}
}

func (s *Server) enqueue(sess *session) {
	s.mu.Lock()
	if sess.playerID == "" {
		s.mu.Unlock()
		s.sendError(sess, "Not authenticated")
		return
	}

	s.removeFromQueueLocked(sess)
	sess.queued = time.Now()
	s.queue = append(s.queue, sess)

	a, b, ok := s.pairLocked()
	var position int
	if !ok {
		position = len(s.queue)
	}
	s.mu.Unlock()

	if ok {
		s.startGame(a, b)
		return
	}

	if s.config.QueueUpdates {
		s.send(sess, protocol.QueueUpdate{Position: position, EstimatedWaitTime: float64(position) * 2})
	}
	if s.config.QueueTimeout > 0 {
		time.AfterFunc(s.config.QueueTimeout, func() { s.expire(sess) })
	}
}

// pairLocked removes and returns the first pair that satisfies the rating gap
func (s *Server) pairLocked() (*session, *session, bool) {
	for i := 0; i < len(s.queue); i++ {
		for j := i + 1; j < len(s.queue); j++ {
			a, b := s.queue[i], s.queue[j]
			if s.config.MaxRatingGap > 0 && abs(a.rating-b.rating) > s.config.MaxRatingGap {
				continue
			}
			s.queue = append(s.queue[:j], s.queue[j+1:]...)
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return a, b, true
		}
	}
	return nil, nil, false
}

func (s *Server) expire(sess *session) {
	s.mu.Lock()
	removed := s.removeFromQueueLocked(sess)
	s.mu.Unlock()

	if removed {
		s.queueTimeouts.Add(1)
		s.send(sess, protocol.MatchmakingTimeout{})
	}
}

func (s *Server) removeFromQueueLocked(sess *session) bool {
	for i, q := range s.queue {
		if q == sess {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Server) disconnect(sess *session) {
	sess.closed.Store(true)

	s.mu.Lock()
	s.removeFromQueueLocked(sess)
	if sess.playerID != "" && s.sessions[sess.playerID] == sess && sess.gameID == "" {
		delete(s.sessions, sess.playerID)
	}
	s.mu.Unlock()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
