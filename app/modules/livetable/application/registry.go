package livetableservice

import (
	"sort"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
)

// Participant is a viewer joining the table.
type Participant struct {
	// SessionID is generated when empty.
	SessionID string
	// Signer is generated when nil.
	Signer *livetabletypes.Signer
	// Balance is the last chip balance the transport layer knows, if any.
	Balance *uint64
}

// JoinResult is returned to the transport layer after a join.
type JoinResult struct {
	SessionID    string
	PublicKeyHex string
	State        livetabletypes.StateMessage
}

// Session is one connected viewer.
type Session struct {
	ID       string
	Signer   *livetabletypes.Signer
	JoinedAt time.Time
}

// BotState is a gateway-owned player.
type BotState struct {
	Name      string
	Signer    *livetabletypes.Signer
	LastRound uint64
}

// Registry tracks sessions and bots. It is guarded by the coordinator's lock.
// A key whose last session left stays departed, keeping its balance and any
// undelivered result, until Prune forgets it.
type Registry struct {
	sessions map[string]*Session
	byKey    map[string]map[string]struct{}
	bots     map[string]*BotState
	balances map[string]uint64
	departed map[string]struct{}
	results  map[string]livetabletypes.ResultMessage
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byKey:    make(map[string]map[string]struct{}),
		bots:     make(map[string]*BotState),
		balances: make(map[string]uint64),
		departed: make(map[string]struct{}),
		results:  make(map[string]livetabletypes.ResultMessage),
	}
}

func (r *Registry) AddSession(s *Session) bool {
	if _, ok := r.sessions[s.ID]; ok {
		return false
	}
	r.sessions[s.ID] = s
	key := s.Signer.PublicKeyHex
	delete(r.departed, key)
	set := r.byKey[key]
	if set == nil {
		set = make(map[string]struct{})
		r.byKey[key] = set
	}
	set[s.ID] = struct{}{}
	return true
}

// RemoveSession drops the session and its index entry. The key's balance
// survives its last session.
func (r *Registry) RemoveSession(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	key := s.Signer.PublicKeyHex
	if set := r.byKey[key]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byKey, key)
			if _, bot := r.bots[key]; !bot {
				r.departed[key] = struct{}{}
			}
		}
	}
	return s, true
}

func (r *Registry) Session(id string) *Session {
	return r.sessions[id]
}

// SessionsFor returns the session ids bound to a public key, sorted.
func (r *Registry) SessionsFor(publicKeyHex string) []string {
	set := r.byKey[publicKeyHex]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SessionIDs returns every session id, sorted.
func (r *Registry) SessionIDs() []string {
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) SessionCount() int { return len(r.sessions) }

func (r *Registry) AddBot(b *BotState) {
	r.bots[b.Signer.PublicKeyHex] = b
}

func (r *Registry) Bot(publicKeyHex string) *BotState {
	return r.bots[publicKeyHex]
}

// Bots returns bots ordered by name.
func (r *Registry) Bots() []*BotState {
	out := make([]*BotState, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SignerFor finds a signer for the key among sessions and bots.
func (r *Registry) SignerFor(publicKeyHex string) *livetabletypes.Signer {
	if b := r.bots[publicKeyHex]; b != nil {
		return b.Signer
	}
	for id := range r.byKey[publicKeyHex] {
		if s := r.sessions[id]; s != nil {
			return s.Signer
		}
	}
	return nil
}

// Tracked reports whether any session or bot owns the key.
func (r *Registry) Tracked(publicKeyHex string) bool {
	if _, ok := r.bots[publicKeyHex]; ok {
		return true
	}
	return len(r.byKey[publicKeyHex]) > 0
}

func (r *Registry) SetBalance(publicKeyHex string, chips uint64) {
	if _, gone := r.departed[publicKeyHex]; !gone && !r.Tracked(publicKeyHex) {
		return
	}
	r.balances[publicKeyHex] = chips
}

// Balance returns the last known balance for the key.
func (r *Registry) Balance(publicKeyHex string) (uint64, bool) {
	b, ok := r.balances[publicKeyHex]
	return b, ok
}

// HoldResult keeps msg for a departed key until it rejoins. It reports false
// for keys that never joined or are still connected.
func (r *Registry) HoldResult(publicKeyHex string, msg livetabletypes.ResultMessage) bool {
	if _, gone := r.departed[publicKeyHex]; !gone {
		return false
	}
	r.results[publicKeyHex] = msg
	return true
}

// TakeResult returns and forgets the result held for the key.
func (r *Registry) TakeResult(publicKeyHex string) (livetabletypes.ResultMessage, bool) {
	msg, ok := r.results[publicKeyHex]
	delete(r.results, publicKeyHex)
	return msg, ok
}

// Prune forgets departed keys unless they hold a result for a round at or
// after keepFrom.
func (r *Registry) Prune(keepFrom uint64) {
	for key := range r.departed {
		if msg, ok := r.results[key]; ok && msg.RoundID >= keepFrom {
			continue
		}
		delete(r.departed, key)
		delete(r.balances, key)
		delete(r.results, key)
	}
}
