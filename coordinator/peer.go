package coordinator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/fairledger/sidechain/common"
	"github.com/fairledger/sidechain/coordinator/schedule"
	"github.com/fairledger/sidechain/crypto"
)

var peerLogger = log.New("module", "coordinator.peer")

// Frame is the envelope every WebSocket message uses: a type tag plus a
// type-specific JSON payload, implementing spec.md §6's "Peer wire
// protocol (WebSocket, JSON frames)".
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandshakeMsg is spec.md §4.3/§6's handshake message shape.
type HandshakeMsg struct {
	AuthToken string `json:"authToken"`
	Signature string `json:"signature"`
	Account   string `json:"account"`
}

// HandshakeAckMsg carries a countersignature over the peer's token.
type HandshakeAckMsg struct {
	Signature string `json:"signature"`
	Account   string `json:"account"`
}

// ProposeRoundMsg is spec.md §6's proposeRound request.
type ProposeRoundMsg struct {
	Round     uint64 `json:"round"`
	RoundHash string `json:"roundHash"`
	Signature string `json:"signature"`
	Account   string `json:"account"`
}

// ProposeRoundAckMsg is spec.md §6's proposeRound ack:
// `(err:string|null, {round, roundHash, signature}|null)`.
type ProposeRoundAckMsg struct {
	Err       *string `json:"err"`
	Round     uint64  `json:"round,omitempty"`
	RoundHash string  `json:"roundHash,omitempty"`
	Signature string  `json:"signature,omitempty"`
}

// Socket is one peer connection. Authentication is bidirectional and
// asymmetric per direction: I am satisfied the peer is who they claim
// once I've verified their signature over the token *I* issued, and
// I've sent my own signature over the token *they* issued — together
// these are spec.md §8's "both peers have produced valid signatures
// over the other's randomly generated authToken".
type Socket struct {
	conn *websocket.Conn

	mu                   sync.Mutex
	account              string
	ip                   string
	myToken              string
	sentOwnHandshake     bool
	sentSigOverPeerToken bool
	verifiedPeerSig      bool

	writeMu sync.Mutex
}

// Authenticated reports whether both halves of the mutual challenge
// have completed.
func (s *Socket) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sentSigOverPeerToken && s.verifiedPeerSig
}

// Account returns the socket's claimed witness account, empty until its
// first handshake frame arrives.
func (s *Socket) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

func (s *Socket) writeFrame(frame Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

// normalizeIP strips the IPv6-mapped-IPv4 prefix per spec.md §4.3's
// handshake note, preserving the reference's stated (if unconfirmed)
// authorization rule (see DESIGN.md).
func normalizeIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return strings.TrimPrefix(host, "::ffff:")
}

func randomToken() string {
	return hex.EncodeToString(crypto.RandomBytes(16))
}

// PeerManager owns every Socket (inbound and outbound) for this
// witness, and is the Broadcaster the Coordinator's Propose action
// drives. Per spec.md §9's "cyclic references" note, it looks up
// witness metadata by account key on demand rather than storing a
// pointer back into the schedule.
type PeerManager struct {
	account    string
	signingKey *crypto.PrivateKey
	schedule   schedule.Reader
	coord      *Coordinator

	mu      sync.Mutex
	sockets map[string]*Socket
}

// NewPeerManager builds a PeerManager. SetCoordinator must be called
// before serving or dialing any connection, since inbound proposeRound
// frames are dispatched straight to it.
func NewPeerManager(account string, signingKey *crypto.PrivateKey, sr schedule.Reader) *PeerManager {
	return &PeerManager{
		account:    account,
		signingKey: signingKey,
		schedule:   sr,
		sockets:    make(map[string]*Socket),
	}
}

// SetCoordinator wires the Coordinator this manager dispatches incoming
// proposals and replies to.
func (m *PeerManager) SetCoordinator(c *Coordinator) {
	m.coord = c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ServeWS upgrades an inbound HTTP connection to the witness WebSocket
// protocol and starts its read loop.
func (m *PeerManager) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		peerLogger.Error("websocket upgrade failed", "err", err)
		return
	}
	sock := &Socket{conn: conn, ip: normalizeIP(r.RemoteAddr)}
	go m.readLoop(sock)
	if err := m.sendHandshake(sock); err != nil {
		peerLogger.Error("send handshake", "err", err)
		m.drop(sock)
	}
}

// connect returns an authenticated-or-handshaking socket for w, dialing
// a fresh connection if none exists yet.
func (m *PeerManager) connect(ctx context.Context, w schedule.Witness) (*Socket, error) {
	m.mu.Lock()
	if sock, ok := m.sockets[w.Account]; ok {
		m.mu.Unlock()
		return sock, nil
	}
	m.mu.Unlock()

	url := fmt.Sprintf("ws://%s/witness", w.IP)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	sock := &Socket{conn: conn, account: w.Account, ip: normalizeIP(w.IP)}

	m.mu.Lock()
	m.sockets[w.Account] = sock
	m.mu.Unlock()

	go m.readLoop(sock)
	if err := m.sendHandshake(sock); err != nil {
		return nil, err
	}
	return sock, nil
}

func (m *PeerManager) drop(sock *Socket) {
	m.mu.Lock()
	if sock.Account() != "" && m.sockets[sock.Account()] == sock {
		delete(m.sockets, sock.Account())
	}
	m.mu.Unlock()
	_ = sock.conn.Close()
}

func (m *PeerManager) sendHandshake(sock *Socket) error {
	token := randomToken()
	sig, err := crypto.Sign(crypto.Sha256([]byte(token)), m.signingKey)
	if err != nil {
		return err
	}
	sock.mu.Lock()
	sock.myToken = token
	sock.sentOwnHandshake = true
	sock.mu.Unlock()

	payload, _ := json.Marshal(HandshakeMsg{AuthToken: token, Signature: sig.Hex(), Account: m.account})
	return sock.writeFrame(Frame{Type: "handshake", Payload: payload})
}

func (m *PeerManager) readLoop(sock *Socket) {
	defer m.drop(sock)
	for {
		_, data, err := sock.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue // malformed frame: drop silently, per spec.md §4.3
		}
		switch frame.Type {
		case "handshake":
			m.handleHandshake(sock, frame.Payload)
		case "handshakeAck":
			m.handleHandshakeAck(sock, frame.Payload)
		case "proposeRound":
			m.handleProposeRound(sock, frame.Payload)
		case "proposeRoundAck":
			m.handleProposeRoundAck(sock, frame.Payload)
		}
	}
}

func (m *PeerManager) handleHandshake(sock *Socket, raw json.RawMessage) {
	var msg HandshakeMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	witness, ok, err := m.schedule.WitnessByAccount(msg.Account)
	if err != nil || !ok {
		peerLogger.Warn("handshake from unknown witness", "account", msg.Account)
		m.drop(sock)
		return
	}
	if normalizeIP(witness.IP) != sock.ip {
		peerLogger.Warn("handshake IP mismatch", "account", msg.Account)
		m.drop(sock)
		return
	}

	sig, err := common.HexToSig(msg.Signature)
	if err != nil {
		m.drop(sock)
		return
	}
	pub, err := crypto.PublicKeyFromBytes(witness.SigningKey)
	if err != nil {
		m.drop(sock)
		return
	}
	if !crypto.VerifySignature(pub, crypto.Sha256([]byte(msg.AuthToken)), sig) {
		peerLogger.Warn("handshake signature invalid", "account", msg.Account)
		m.drop(sock)
		return
	}

	sock.mu.Lock()
	sock.account = msg.Account
	alreadySentOwn := sock.sentOwnHandshake
	sock.mu.Unlock()

	m.mu.Lock()
	m.sockets[msg.Account] = sock
	m.mu.Unlock()

	if !alreadySentOwn {
		if err := m.sendHandshake(sock); err != nil {
			m.drop(sock)
			return
		}
	}

	counterSig, err := crypto.Sign(crypto.Sha256([]byte(msg.AuthToken)), m.signingKey)
	if err != nil {
		return
	}
	sock.mu.Lock()
	sock.sentSigOverPeerToken = true
	sock.mu.Unlock()

	payload, _ := json.Marshal(HandshakeAckMsg{Signature: counterSig.Hex(), Account: m.account})
	if err := sock.writeFrame(Frame{Type: "handshakeAck", Payload: payload}); err != nil {
		m.drop(sock)
	}
}

func (m *PeerManager) handleHandshakeAck(sock *Socket, raw json.RawMessage) {
	var msg HandshakeAckMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Account != sock.Account() {
		m.drop(sock)
		return
	}

	witness, ok, err := m.schedule.WitnessByAccount(msg.Account)
	if err != nil || !ok {
		m.drop(sock)
		return
	}
	sig, err := common.HexToSig(msg.Signature)
	if err != nil {
		m.drop(sock)
		return
	}
	pub, err := crypto.PublicKeyFromBytes(witness.SigningKey)
	if err != nil {
		m.drop(sock)
		return
	}

	sock.mu.Lock()
	token := sock.myToken
	sock.mu.Unlock()

	if !crypto.VerifySignature(pub, crypto.Sha256([]byte(token)), sig) {
		peerLogger.Warn("handshake ack signature invalid", "account", msg.Account)
		m.drop(sock)
		return
	}

	sock.mu.Lock()
	sock.verifiedPeerSig = true
	sock.mu.Unlock()
}

func (m *PeerManager) handleProposeRound(sock *Socket, raw json.RawMessage) {
	var msg ProposeRoundMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if len(msg.RoundHash) != 64 {
		m.replyProposeError(sock, "invalid signature")
		return
	}
	sig, err := common.HexToSig(msg.Signature)
	if err != nil {
		m.replyProposeError(sock, "invalid signature")
		return
	}

	ack, err := m.coord.HandleProposal(sock.Authenticated(), sock.Account(), msg.Round, msg.RoundHash, sig)
	if err != nil {
		if stderrors.Is(err, ErrConsensusMismatch) {
			m.replyProposeError(sock, "round hash different")
			return
		}
		peerLogger.Warn("reject proposal", "account", sock.Account(), "err", err)
		m.replyProposeError(sock, "invalid signature")
		return
	}

	payload, _ := json.Marshal(ProposeRoundAckMsg{Round: ack.Round, RoundHash: ack.RoundHash, Signature: ack.Signature.Hex()})
	_ = sock.writeFrame(Frame{Type: "proposeRoundAck", Payload: payload})
}

func (m *PeerManager) replyProposeError(sock *Socket, msg string) {
	payload, _ := json.Marshal(ProposeRoundAckMsg{Err: &msg})
	_ = sock.writeFrame(Frame{Type: "proposeRoundAck", Payload: payload})
}

func (m *PeerManager) handleProposeRoundAck(sock *Socket, raw json.RawMessage) {
	var msg ProposeRoundAckMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Err != nil {
		peerLogger.Warn("peer rejected proposal", "account", sock.Account(), "reason", *msg.Err)
		return
	}
	sig, err := common.HexToSig(msg.Signature)
	if err != nil {
		return
	}
	if err := m.coord.HandlePeerReply(sock.Account(), msg.Round, msg.RoundHash, sig); err != nil {
		peerLogger.Warn("aggregate peer reply failed", "account", sock.Account(), "err", err)
	}
}

// Broadcast implements coordinator.Broadcaster: it sends a proposeRound
// request to every witness, skipping any whose socket has not yet
// completed the handshake. A skipped witness is not sent this
// proposition later; it is reached only if the round is proposed again
// after the proposition times out.
func (m *PeerManager) Broadcast(ctx context.Context, witnesses []schedule.Witness, round uint64, roundHash string, sig common.Sig) {
	for _, w := range witnesses {
		sock, err := m.connect(ctx, w)
		if err != nil {
			peerLogger.Error("connect to witness", "account", w.Account, "err", err)
			continue
		}
		if !sock.Authenticated() {
			peerLogger.Debug("skipping unauthenticated witness this tick", "account", w.Account)
			continue
		}
		payload, _ := json.Marshal(ProposeRoundMsg{Round: round, RoundHash: roundHash, Signature: sig.Hex(), Account: m.account})
		if err := sock.writeFrame(Frame{Type: "proposeRound", Payload: payload}); err != nil {
			peerLogger.Error("send proposeRound", "account", w.Account, "err", err)
			m.drop(sock)
		}
	}
}
