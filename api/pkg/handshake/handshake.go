// Package handshake implements the PSK handshake described in §4.4:
// the initiator sends the magic, its machine name, and its PSK hash,
// and the responder replies "OK" if the hash matches its own. The
// responder learns the initiator's machine name; the reply carries no
// name, so the initiator learns none. TOFU verification against the
// FingerprintStore is a separate step (VerifyPeer) that the caller
// runs after the exchange.
//
// This is not TLS: the PSK hash authenticates the peer's knowledge of
// the shared secret, but traffic after the handshake is in the clear
// on the socket (Open Question Q2). Layering confidentiality on top is
// left as a known limitation of this release.
package handshake

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/multishiva/multishiva/api/pkg/fingerprint"
	"github.com/multishiva/multishiva/api/pkg/kverr"
)

// Magic identifies protocol version 1. Any other prefix is rejected.
var Magic = []byte("MULTISHIVA_PSK_V1")

const (
	okResponse  = "OK"
	maxNameLen  = 256
	readTimeout = 10 * time.Second
)

// Result carries what the responder side of the handshake learned:
// the initiator's declared machine name.
type Result struct {
	PeerName string
}

// RunInitiator performs the client side of the handshake: send the
// magic, our name, and the PSK hash; read the responder's "OK". The
// wire protocol carries no server-declared identity, so the caller
// (AgentLoop) already knows which peer name it dialed — it calls
// VerifyPeer with that name afterward to run TOFU verification.
func RunInitiator(conn net.Conn, selfName, psk string, logger zerolog.Logger) error {
	if err := conn.SetDeadline(time.Now().Add(readTimeout)); err != nil {
		return kverr.New(kverr.Connect, "handshake.RunInitiator", err)
	}
	defer conn.SetDeadline(time.Time{})

	hash := fingerprint.HashPSK(psk)

	msg := buildInitiatorMessage(selfName, hash)
	if _, err := conn.Write(msg); err != nil {
		return kverr.New(kverr.HandshakeFailed, "handshake.RunInitiator", fmt.Errorf("write: %w", err))
	}

	resp := make([]byte, len(okResponse))
	if _, err := io.ReadFull(conn, resp); err != nil {
		return kverr.New(kverr.HandshakeFailed, "handshake.RunInitiator", fmt.Errorf("read response: %w", err))
	}
	if string(resp) != okResponse {
		return kverr.New(kverr.HandshakeFailed, "handshake.RunInitiator", fmt.Errorf("unexpected response %q", resp))
	}

	logger.Info().Str("self", selfName).Msg("handshake: initiator succeeded")
	return nil
}

// VerifyPeer runs TOFU verification for a named peer's PSK hash
// against store. Split out from RunInitiator so HostLoop (which learns
// the peer's name only once RunResponder has read the initiator's
// request) and AgentLoop (which knows the target name before dialing)
// can both call it at the right point in their respective flows.
func VerifyPeer(store *fingerprint.Store, peerName, psk string) (fingerprint.VerifyResult, error) {
	hash := fingerprint.HashPSK(psk)
	result, err := store.VerifyOrSave(peerName, hash)
	if err != nil {
		return result, kverr.New(kverr.FingerprintMismatch, "handshake.VerifyPeer", err)
	}
	if result == fingerprint.Mismatch {
		return result, kverr.New(kverr.FingerprintMismatch, "handshake.VerifyPeer",
			fmt.Errorf("pinned hash for %q does not match", peerName))
	}
	return result, nil
}

// RunResponder performs the server side of the handshake: read the
// initiator's magic + name + hash, verify the hash against the local
// PSK, and reply "OK" on success (closing with nothing otherwise, by
// returning an error for the caller to close the connection on).
func RunResponder(conn net.Conn, psk string, logger zerolog.Logger) (Result, error) {
	if err := conn.SetDeadline(time.Now().Add(readTimeout)); err != nil {
		return Result{}, kverr.New(kverr.Accept, "handshake.RunResponder", err)
	}
	defer conn.SetDeadline(time.Time{})

	r := bufio.NewReader(io.LimitReader(conn, int64(len(Magic)+maxNameLen+1+64)))

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return Result{}, kverr.New(kverr.HandshakeFailed, "handshake.RunResponder", fmt.Errorf("read magic: %w", err))
	}
	if !bytes.Equal(magic, Magic) {
		return Result{}, kverr.New(kverr.HandshakeFailed, "handshake.RunResponder", fmt.Errorf("bad magic"))
	}

	name, err := r.ReadString(0x00)
	if err != nil {
		return Result{}, kverr.New(kverr.HandshakeFailed, "handshake.RunResponder", fmt.Errorf("read name: %w", err))
	}
	name = name[:len(name)-1] // drop the trailing 0x00 delimiter
	if name == "" {
		return Result{}, kverr.New(kverr.HandshakeFailed, "handshake.RunResponder", fmt.Errorf("empty machine name"))
	}

	hashHex := make([]byte, 64) // hex(SHA-256(...)) is always 64 chars
	if _, err := io.ReadFull(r, hashHex); err != nil {
		return Result{}, kverr.New(kverr.HandshakeFailed, "handshake.RunResponder", fmt.Errorf("read hash: %w", err))
	}
	if _, err := hex.DecodeString(string(hashHex)); err != nil {
		return Result{}, kverr.New(kverr.HandshakeFailed, "handshake.RunResponder", fmt.Errorf("malformed hash: %w", err))
	}

	expected := fingerprint.HashPSK(psk)
	if string(hashHex) != expected {
		logger.Warn().Str("peer", name).Msg("handshake: PSK mismatch, rejecting")
		return Result{}, kverr.New(kverr.HandshakeFailed, "handshake.RunResponder", fmt.Errorf("PSK mismatch"))
	}

	if _, err := conn.Write([]byte(okResponse)); err != nil {
		return Result{}, kverr.New(kverr.HandshakeFailed, "handshake.RunResponder", fmt.Errorf("write OK: %w", err))
	}

	logger.Info().Str("peer", name).Msg("handshake: accepted")
	return Result{PeerName: name}, nil
}

// buildInitiatorMessage constructs MAGIC || name || 0x00 || hex(hash).
func buildInitiatorMessage(name, hashHex string) []byte {
	buf := make([]byte, 0, len(Magic)+len(name)+1+len(hashHex))
	buf = append(buf, Magic...)
	buf = append(buf, []byte(name)...)
	buf = append(buf, 0x00)
	buf = append(buf, []byte(hashHex)...)
	return buf
}
