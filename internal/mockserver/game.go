package mockserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"battle-loadtest/internal/protocol"
)

type answer struct {
	playerID string
	round    int
	value    string
}

// game is one running match between two players
type game struct {
	id      string
	players [2]string
	answers chan answer

	mu      sync.Mutex
	conns   map[string]*session
	current *protocol.GameState
}

func (s *Server) startGame(a, b *session) {
	g := &game{
		id:      uuid.NewString(),
		players: [2]string{a.playerID, b.playerID},
		answers: make(chan answer, 16),
		conns:   map[string]*session{a.playerID: a, b.playerID: b},
	}

	s.mu.Lock()
	a.gameID = g.id
	b.gameID = g.id
	s.games[g.id] = g
	s.mu.Unlock()

	s.matches.Add(1)
	s.send(a, protocol.MatchFound{GameID: g.id, Opponent: protocol.Opponent{ID: b.playerID, Rating: b.rating}})
	s.send(b, protocol.MatchFound{GameID: g.id, Opponent: protocol.Opponent{ID: a.playerID, Rating: a.rating}})

	s.wg.Add(1)
	go s.runGame(g)
}

func (s *Server) runGame(g *game) {
	defer s.wg.Done()
	defer s.endGame(g)

	scores := map[string]int{}
	correct := s.config.Options[0]

	for round := 1; round <= s.config.Rounds; round++ {
		state := protocol.GameState{Round: round, Plant: protocol.Plant{Options: s.config.Options}}
		g.mu.Lock()
		g.current = &state
		g.mu.Unlock()
		g.broadcast(s, state)

		winner := s.collectRound(g, round, correct)
		if winner != "" {
			scores[winner]++
		}
		g.broadcast(s, protocol.RoundResult{Round: round, Winner: winner})

		if s.config.RoundGap > 0 {
			time.Sleep(s.config.RoundGap)
		}
	}

	final := ""
	if scores[g.players[0]] > scores[g.players[1]] {
		final = g.players[0]
	} else if scores[g.players[1]] > scores[g.players[0]] {
		final = g.players[1]
	}
	raw, _ := json.Marshal(map[string]any{"gameId": g.id, "winner": final, "scores": scores})
	g.broadcast(s, protocol.GameCompleted{Result: raw})
	s.gamesCompleted.Add(1)
}

// collectRound waits for both answers or the round timeout.
// The first correct answer wins the round.
func (s *Server) collectRound(g *game, round int, correct string) string {
	timer := time.NewTimer(s.config.RoundTimeout)
	defer timer.Stop()

	seen := map[string]bool{}
	winner := ""
	for len(seen) < len(g.players) {
		select {
		case a := <-g.answers:
			if a.round != round || seen[a.playerID] {
				continue
			}
			seen[a.playerID] = true
			if winner == "" && a.value == correct {
				winner = a.playerID
			}
		case <-timer.C:
			return winner
		}
	}
	return winner
}

func (s *Server) answer(sess *session, m protocol.SubmitAnswer) {
	s.mu.Lock()
	g := s.games[m.GameID]
	s.mu.Unlock()

	if g == nil {
		s.sendError(sess, "Unknown game")
		return
	}
	select {
	case g.answers <- answer{playerID: m.PlayerID, round: m.Round, value: m.Answer}:
	default:
	}
}

func (s *Server) endGame(g *game) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.games, g.id)
	for _, id := range g.players {
		if sess := s.sessions[id]; sess != nil && sess.gameID == g.id {
			sess.gameID = ""
			if sess.closed.Load() {
				delete(s.sessions, id)
			}
		}
	}
}

func (g *game) broadcast(s *Server, m protocol.Message) {
	g.mu.Lock()
	targets := make([]*session, 0, len(g.conns))
	for _, sess := range g.conns {
		targets = append(targets, sess)
	}
	g.mu.Unlock()

	for _, sess := range targets {
		s.send(sess, m)
	}
}

// rebind points playerID at a new connection and replays the current round
func (g *game) rebind(s *Server, playerID string, sess *session) {
	g.mu.Lock()
	g.conns[playerID] = sess
	current := g.current
	g.mu.Unlock()

	if current != nil {
		s.send(sess, *current)
	}
}
