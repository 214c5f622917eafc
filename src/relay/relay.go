package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/botcash/nostr-bridge/src/botcash"
	"github.com/botcash/nostr-bridge/src/identity"
	"github.com/botcash/nostr-bridge/src/mapper"
	"github.com/botcash/nostr-bridge/src/nostr"
	"github.com/botcash/nostr-bridge/src/store"
)

// Config tunes the relay engine.
type Config struct {
	// AllowedKinds is the publish allow-list. Empty selects the default set.
	AllowedKinds []int
	// RateLimitPerMinute caps accepted events per pubkey per minute window.
	RateLimitPerMinute int
	// MaxReplay caps stored events replayed per subscription request.
	MaxReplay int
	// PollInterval is the Botcash feed poll period.
	PollInterval time.Duration
	// FeedLimit is the page size of one feed poll.
	FeedLimit int
	// MaxBridgeRetries bounds cross-post attempts per Botcash transaction.
	MaxBridgeRetries int
}

// DefaultConfig returns sane relay settings.
func DefaultConfig() Config {
	return Config{
		AllowedKinds:       nostr.DefaultAllowedKinds(),
		RateLimitPerMinute: 30,
		MaxReplay:          100,
		PollInterval:       30 * time.Second,
		FeedLimit:          50,
		MaxBridgeRetries:   3,
	}
}

// connection is one websocket client with its subscriptions. writeMu
// serializes frame writes; subscriptions are guarded by the relay mutex.
type connection struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	subs    map[string][]nostr.Filter
}

func (c *connection) send(frame []interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(frame)
}

// Relay is the wire-protocol engine. It accepts websocket connections,
// persists and fans out published events, and drives bridging in both
// directions.
type Relay struct {
	coreLock sync.Mutex

	conf     Config
	store    store.Store
	identity *identity.Service
	mapper   *mapper.Mapper
	botcash  botcash.Client

	upgrader     websocket.Upgrader
	conns        map[*connection]bool
	allowedKinds map[int]bool

	// Failed cross-post attempts per Botcash tx, bounded by MaxBridgeRetries.
	bridgeRetries map[string]int

	shutdownCh chan struct{}
	waitGroup  sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once

	logger *logrus.Entry
}

// NewRelay creates a Relay. The store, identity service, mapper, and Botcash
// client are all required collaborators.
func NewRelay(
	conf Config,
	s store.Store,
	identityService *identity.Service,
	m *mapper.Mapper,
	client botcash.Client,
	logger *logrus.Entry,
) *Relay {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	if len(conf.AllowedKinds) == 0 {
		conf.AllowedKinds = nostr.DefaultAllowedKinds()
	}

	allowed := map[int]bool{}
	for _, kind := range conf.AllowedKinds {
		allowed[kind] = true
	}

	return &Relay{
		conf:     conf,
		store:    s,
		identity: identityService,
		mapper:   m,
		botcash:  client,
		upgrader: websocket.Upgrader{
			// The wire protocol carries its own identity scheme.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:         map[*connection]bool{},
		allowedKinds:  allowed,
		bridgeRetries: map[string]int{},
		shutdownCh:    make(chan struct{}),
		logger:        logger,
	}
}

// Start launches the background feed poller. Safe to call once.
func (r *Relay) Start() {
	r.startOnce.Do(func() {
		r.waitGroup.Add(1)
		go r.pollLoop()
	})
}

// Shutdown stops the poller, waits for it, and closes every connection.
func (r *Relay) Shutdown() {
	r.stopOnce.Do(func() {
		r.logger.Debug("Relay shutting down")
		close(r.shutdownCh)
		r.waitGroup.Wait()

		r.coreLock.Lock()
		defer r.coreLock.Unlock()
		for conn := range r.conns {
			conn.ws.Close()
			delete(r.conns, conn)
		}
	})
}

// ServeHTTP upgrades the request to a websocket and runs the frame loop until
// the client disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	conn := &connection{
		ws:   ws,
		subs: map[string][]nostr.Filter{},
	}

	r.coreLock.Lock()
	r.conns[conn] = true
	r.coreLock.Unlock()

	r.logger.WithField("remote", ws.RemoteAddr().String()).Debug("Client connected")
	r.readLoop(conn)

	r.coreLock.Lock()
	delete(r.conns, conn)
	r.coreLock.Unlock()

	ws.Close()
	r.logger.WithField("remote", ws.RemoteAddr().String()).Debug("Client disconnected")
}

func (r *Relay) readLoop(conn *connection) {
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(raw, &frame); err != nil || len(frame) == 0 {
			r.sendNotice(conn, "could not parse frame")
			continue
		}

		var verb string
		if err := json.Unmarshal(frame[0], &verb); err != nil {
			r.sendNotice(conn, "could not parse frame")
			continue
		}

		switch verb {
		case "EVENT":
			if len(frame) < 2 {
				r.sendNotice(conn, "EVENT frame missing event")
				continue
			}
			r.handleEvent(conn, frame[1])
		case "REQ":
			if len(frame) < 2 {
				r.sendNotice(conn, "REQ frame missing subscription id")
				continue
			}
			r.handleReq(conn, frame[1], frame[2:])
		case "CLOSE":
			if len(frame) < 2 {
				r.sendNotice(conn, "CLOSE frame missing subscription id")
				continue
			}
			r.handleClose(conn, frame[1])
		default:
			r.sendNotice(conn, fmt.Sprintf("unknown frame type: %s", verb))
		}
	}
}

// handleEvent runs the publish path: validate, dedupe, rate-limit, persist,
// bridge, broadcast, ack.
func (r *Relay) handleEvent(conn *connection, raw json.RawMessage) {
	event := new(nostr.Event)
	if err := event.Unmarshal(raw); err != nil {
		r.sendNotice(conn, "could not parse event")
		return
	}

	if !event.ValidID() {
		r.sendOK(conn, event.ID, false, "invalid: event id does not match")
		return
	}
	if !r.allowedKinds[event.Kind] {
		r.sendOK(conn, event.ID, false, fmt.Sprintf("blocked: kind %d not accepted", event.Kind))
		return
	}

	// A replayed id is acknowledged without reprocessing or rebroadcast, and
	// without charging the rate window.
	if _, err := r.store.GetEvent(event.ID); err == nil {
		r.sendOK(conn, event.ID, true, "duplicate: already have this event")
		return
	}

	if !r.allow(event.PubKey) {
		r.sendOK(conn, event.ID, false, "rate-limited: slow down")
		return
	}

	if err := r.store.SetEvent(event); err != nil {
		r.logger.WithError(err).Error("Failed to store event")
		r.sendOK(conn, event.ID, false, "error: could not store event")
		return
	}

	// Bridging failure is not protocol failure; the event stays stored and
	// acknowledged either way.
	r.bridgeToBotcash(event)

	r.broadcast(event)
	r.sendOK(conn, event.ID, true, "")
}

func (r *Relay) handleReq(conn *connection, rawSubID json.RawMessage, rawFilters []json.RawMessage) {
	var subID string
	if err := json.Unmarshal(rawSubID, &subID); err != nil {
		r.sendNotice(conn, "could not parse subscription id")
		return
	}

	filters := make([]nostr.Filter, len(rawFilters))
	for i, raw := range rawFilters {
		if err := json.Unmarshal(raw, &filters[i]); err != nil {
			r.sendNotice(conn, fmt.Sprintf("could not parse filter for %s", subID))
			return
		}
	}

	r.coreLock.Lock()
	conn.subs[subID] = filters
	r.coreLock.Unlock()

	// Replay stored matches, then mark the end of stored events.
	for _, event := range r.store.Events(filters, r.conf.MaxReplay) {
		if err := r.sendEvent(conn, subID, event); err != nil {
			return
		}
	}
	r.sendEOSE(conn, subID)

	r.logger.WithFields(logrus.Fields{
		"sub_id":  subID,
		"filters": len(filters),
	}).Debug("Subscription registered")
}

func (r *Relay) handleClose(conn *connection, rawSubID json.RawMessage) {
	var subID string
	if err := json.Unmarshal(rawSubID, &subID); err != nil {
		r.sendNotice(conn, "could not parse subscription id")
		return
	}

	r.coreLock.Lock()
	delete(conn.subs, subID)
	r.coreLock.Unlock()
}

// broadcast pushes an event to every connection with a matching subscription,
// at most once per connection. A failed send drops only that connection.
func (r *Relay) broadcast(event *nostr.Event) {
	type delivery struct {
		conn  *connection
		subID string
	}

	r.coreLock.Lock()
	deliveries := []delivery{}
	for conn := range r.conns {
		for subID, filters := range conn.subs {
			if nostr.MatchesAny(filters, event) {
				deliveries = append(deliveries, delivery{conn, subID})
				break
			}
		}
	}
	r.coreLock.Unlock()

	for _, d := range deliveries {
		if err := r.sendEvent(d.conn, d.subID, event); err != nil {
			r.logger.WithError(err).Debug("Dropping unresponsive connection")
			r.coreLock.Lock()
			delete(r.conns, d.conn)
			r.coreLock.Unlock()
			d.conn.ws.Close()
		}
	}
}

//------------------------------------------------------------------------------
// Outbound frames

func (r *Relay) sendEvent(conn *connection, subID string, event *nostr.Event) error {
	return conn.send([]interface{}{"EVENT", subID, event})
}

func (r *Relay) sendOK(conn *connection, eventID string, ok bool, reason string) {
	conn.send([]interface{}{"OK", eventID, ok, reason})
}

func (r *Relay) sendEOSE(conn *connection, subID string) {
	conn.send([]interface{}{"EOSE", subID})
}

func (r *Relay) sendNotice(conn *connection, text string) {
	conn.send([]interface{}{"NOTICE", text})
}

//------------------------------------------------------------------------------
// Stats

// Stats is a point-in-time snapshot of the relay.
type Stats struct {
	Connections    int `json:"connections"`
	Subscriptions  int `json:"subscriptions"`
	StoredEvents   int `json:"stored_events"`
	LinkedAccounts int `json:"linked_accounts"`
}

// GetStats returns a snapshot of connection and storage counters.
func (r *Relay) GetStats() Stats {
	r.coreLock.Lock()
	conns := len(r.conns)
	subs := 0
	for conn := range r.conns {
		subs += len(conn.subs)
	}
	r.coreLock.Unlock()

	return Stats{
		Connections:    conns,
		Subscriptions:  subs,
		StoredEvents:   r.store.EventCount(),
		LinkedAccounts: len(r.identity.ActiveKeys()),
	}
}
