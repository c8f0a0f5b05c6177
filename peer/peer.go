// server/peer/peer.go
package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vinizap/mindmap/server/auth"
	"github.com/vinizap/mindmap/server/metrics"
	"github.com/vinizap/mindmap/server/store"
	"github.com/vinizap/mindmap/server/ws"
)

const (
	defaultReconnectDelay = 5 * time.Second
	seenCapacity          = 1024
)

// PeerManager follows the hubs of other mindmap servers and applies every
// replacement they announce to the local store.
type PeerManager struct {
	peerURLs       []string
	hub            *ws.Hub
	store          store.Store
	metrics        *metrics.Collector
	token          string
	log            zerolog.Logger
	ReconnectDelay time.Duration

	mu       sync.Mutex
	seen     map[string]struct{}
	seenFIFO []string
}

// NewPeerManager creates a manager that will connect to the given peer URLs.
// token is sent to peers that guard their hub; metrics may be nil.
func NewPeerManager(peerURLs []string, hub *ws.Hub, st store.Store, m *metrics.Collector, token string, log zerolog.Logger) *PeerManager {
	return &PeerManager{
		peerURLs:       peerURLs,
		hub:            hub,
		store:          st,
		metrics:        m,
		token:          token,
		log:            log.With().Str("component", "peer").Logger(),
		ReconnectDelay: defaultReconnectDelay,
		seen:           make(map[string]struct{}, seenCapacity),
	}
}

// Start launches a goroutine per peer that stays connected until ctx is done.
func (pm *PeerManager) Start(ctx context.Context) {
	for _, peerURL := range pm.peerURLs {
		go pm.connectLoop(ctx, peerURL)
	}
}

func (pm *PeerManager) connectLoop(ctx context.Context, peerURL string) {
	for {
		pm.connectToPeer(ctx, peerURL)

		select {
		case <-ctx.Done():
			return
		case <-time.After(pm.ReconnectDelay):
		}
		pm.log.Info().Str("peer", peerURL).Msg("reconnecting to peer")
	}
}

func (pm *PeerManager) connectToPeer(ctx context.Context, peerURL string) {
	u, err := url.Parse(peerURL)
	if err != nil {
		pm.log.Error().Err(err).Str("peer", peerURL).Msg("invalid peer URL")
		return
	}

	q := u.Query()
	q.Set("server_id", pm.hub.Origin())
	u.RawQuery = q.Encode()

	header := http.Header{}
	if pm.token != "" {
		header.Set(auth.HeaderName, pm.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		pm.log.Warn().Err(err).Str("peer", peerURL).Msg("failed to connect to peer")
		return
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	pm.log.Info().Str("peer", peerURL).Msg("connected to peer")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				pm.log.Warn().Err(err).Str("peer", peerURL).Msg("peer connection lost")
			}
			return
		}

		var msg ws.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			pm.log.Warn().Err(err).Str("peer", peerURL).Msg("peer message parse error")
			pm.count("malformed")
			continue
		}

		pm.applyPeerMessage(msg)
	}
}

func (pm *PeerManager) applyPeerMessage(msg ws.Message) {
	// Messages that went around the ring and came back.
	if msg.Origin == pm.hub.Origin() {
		pm.count("echo")
		return
	}
	if msg.Type != ws.TypeReplaced || msg.Document == nil || msg.ID == "" {
		pm.count("ignored")
		return
	}
	// In a mesh the same save arrives once per route.
	if !pm.markSeen(msg.ID) {
		pm.count("duplicate")
		return
	}

	stored := pm.store.Replace(msg.Document.WithEmptyLists())
	pm.count("applied")
	if pm.metrics != nil {
		pm.metrics.Saves.WithLabelValues("peer", "ok").Inc()
		pm.metrics.ObserveDocument(stored)
	}

	pm.log.Debug().
		Str("origin", msg.Origin).
		Int("nodes", len(stored.Nodes)).
		Msg("applied mind map from peer")

	pm.hub.Publish(ws.Message{ID: msg.ID, Type: msg.Type, Origin: msg.Origin, Document: &stored})
}

// markSeen records id and reports whether it was new. The oldest ids are
// forgotten past seenCapacity.
func (pm *PeerManager) markSeen(id string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, ok := pm.seen[id]; ok {
		return false
	}
	pm.seen[id] = struct{}{}
	pm.seenFIFO = append(pm.seenFIFO, id)
	if len(pm.seenFIFO) > seenCapacity {
		delete(pm.seen, pm.seenFIFO[0])
		pm.seenFIFO = pm.seenFIFO[1:]
	}
	return true
}

func (pm *PeerManager) count(outcome string) {
	if pm.metrics != nil {
		pm.metrics.PeerMessages.WithLabelValues(outcome).Inc()
	}
}
