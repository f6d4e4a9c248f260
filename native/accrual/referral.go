package accrual

import (
	"encoding/binary"
	"strings"

	"lukechampine.com/blake3"

	"vestchain/core/events"
)

const (
	codeLength      = 8
	codeAlphabet    = 36
	maxCodeAttempts = 64
)

// deriveCode maps a participant and salt deterministically onto an 8-character
// code over [A-Z0-9].
func deriveCode(addr [20]byte, salt uint64) string {
	var seed [28]byte
	copy(seed[:20], addr[:])
	binary.BigEndian.PutUint64(seed[20:], salt)
	sum := blake3.Sum256(seed[:])

	out := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		m := sum[i] % codeAlphabet
		if m < 26 {
			out[i] = 'A' + m
		} else {
			out[i] = '0' + (m - 26)
		}
	}
	return string(out)
}

// NormalizeCode validates the wire format of a referral code: exactly eight
// alphanumeric characters, case-insensitive on input.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != codeLength {
		return "", ErrInvalidReferralCode
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", ErrInvalidReferralCode
		}
	}
	return code, nil
}

// EnsureCode returns the participant's referral code, assigning one on first
// use. The boolean reports whether a new code was generated.
func (e *Engine) EnsureCode(addr [20]byte) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureCodeLocked(addr)
}

func (e *Engine) ensureCodeLocked(addr [20]byte) (string, bool, error) {
	existing, ok, err := e.state.ReferralCodeOf(addr)
	if err != nil {
		return "", false, err
	}
	if ok {
		return existing, false, nil
	}
	// Collisions in a 36^8 space are astronomically unlikely; the retry
	// ceiling turns exhaustion into a hard error instead of an open loop.
	for salt := uint64(0); salt < maxCodeAttempts; salt++ {
		code := deriveCode(addr, salt)
		if _, taken, err := e.state.ReferralOwner(code); err != nil {
			return "", false, err
		} else if taken {
			continue
		}
		if err := e.state.SetReferralCode(addr, code); err != nil {
			return "", false, err
		}
		e.emit(events.ReferralCodeAssigned{Participant: addr, Code: code})
		e.telemetry.ObserveReferralCodeAssigned()
		return code, true, nil
	}
	return "", false, ErrReferralCodeSpace
}

// ReferralCodeOf reports the code assigned to the participant, if any.
func (e *Engine) ReferralCodeOf(addr [20]byte) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ReferralCodeOf(addr)
}

// ResolveReferralCode maps a referral code back to its owner.
func (e *Engine) ResolveReferralCode(code string) ([20]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(code)
}

func (e *Engine) resolveLocked(raw string) ([20]byte, error) {
	code, err := NormalizeCode(raw)
	if err != nil {
		return [20]byte{}, err
	}
	owner, ok, err := e.state.ReferralOwner(code)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrReferralCodeNotFound
	}
	return owner, nil
}
