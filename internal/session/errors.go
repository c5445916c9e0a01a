package session

import "errors"

// ErrCooldownActive is returned by RunFolder when a session against the
// same (peer, folder) pair completed too recently (spec §4.8 "Cooldowns").
var ErrCooldownActive = errors.New("session: recent session cooldown active")

// ErrRemoteFolderMissing is the fatal discovery-phase error for a peer
// that does not serve the requested syncID (spec §4.8 "remote folder
// missing is fatal for this session").
var ErrRemoteFolderMissing = errors.New("session: remote folder missing")

// ErrInvalidResponse is the sentinel for a malformed or incomplete
// discovery response (spec §4.8, §7 Protocol class). discover does not
// return it: a response that fails to decode surfaces as the wrapped error
// from internal/protocol, and decoded responses are not validated further.
var ErrInvalidResponse = errors.New("session: invalid response from peer")
