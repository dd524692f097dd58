// Package mockserver provides a minimal in-process battle server.
//
// It speaks the same {type, data} websocket protocol as the real service and
// is used as the black-box peer in tests and by the mock-server command for
// local dry runs. Matchmaking is a naive FIFO pairing (optionally bounded by a
// rating gap); it does not reproduce the real server's matchmaking logic.
//
// Supported flows:
//
//   - AUTHENTICATE registers (or re-binds) a player session
//   - START_MATCHMAKING queues the player; QUEUE_UPDATE, MATCH_FOUND and
//     MATCHMAKING_TIMEOUT follow
//   - matched players play Rounds rounds of GAME_STATE / SUBMIT_ANSWER /
//     ROUND_RESULT followed by GAME_COMPLETED
//   - PING, TEST_ECHO, THROUGHPUT_TEST and LARGE_MESSAGE_TEST are answered
//   - malformed frames and unknown types get an ERROR unless Silent is set
//
// A player that re-authenticates while its game is running is re-bound to
// the game and receives the current GAME_STATE again.
package mockserver
