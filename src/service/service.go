package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/botcash/nostr-bridge/src/identity"
	"github.com/botcash/nostr-bridge/src/relay"
	"github.com/botcash/nostr-bridge/src/store"
)

// Service exposes the HTTP API for identity linking and relay stats.
type Service struct {
	sync.Mutex

	bindAddress string
	relay       *relay.Relay
	identity    *identity.Service
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService creates the HTTP service and registers its handlers.
func NewService(bindAddress string, r *relay.Relay, i *identity.Service, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		relay:       r,
		identity:    i,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering bridge API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/link/initiate", s.makeHandler(s.InitiateLink))
	s.mux.HandleFunc("/link/complete", s.makeHandler(s.CompleteLink))
	s.mux.HandleFunc("/link/unlink", s.makeHandler(s.Unlink))
	s.mux.HandleFunc("/link/privacy", s.makeHandler(s.SetPrivacyMode))
	s.mux.HandleFunc("/link/status/", s.makeHandler(s.GetLinkStatus))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// ServeHTTP implements http.Handler, mostly for tests.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving bridge API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// GetStats returns relay counters.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.relay.GetStats())
}

// InitiateLink starts the identity-link handshake.
func (s *Service) InitiateLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		PubKey  string `json:"pubkey"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	challenge, verification, err := s.identity.Initiate(body.PubKey, body.Address)
	if err != nil {
		s.logger.WithError(err).Error("Initiating link")
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, map[string]string{
		"challenge":    challenge,
		"verification": verification,
	})
}

// CompleteLink finishes the handshake with the signed challenge.
func (s *Service) CompleteLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		PubKey    string `json:"pubkey"`
		Signature string `json:"signature"`
		EventID   string `json:"event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := s.identity.Complete(body.PubKey, body.Signature, body.EventID)
	if err != nil {
		s.logger.WithError(err).Error("Completing link")
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, linkView(record))
}

// Unlink terminates an active link.
func (s *Service) Unlink(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		PubKey string `json:"pubkey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.identity.Unlink(body.PubKey); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, map[string]string{"status": string(store.StatusUnlinked)})
}

// SetPrivacyMode updates the mirroring preference of an active link.
func (s *Service) SetPrivacyMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		PubKey string `json:"pubkey"`
		Mode   string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.identity.SetPrivacyMode(body.PubKey, store.PrivacyMode(body.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, map[string]string{"mode": body.Mode})
}

// GetLinkStatus returns the active link for /link/status/{pubkey}.
func (s *Service) GetLinkStatus(w http.ResponseWriter, r *http.Request) {
	pubkey := r.URL.Path[len("/link/status/"):]

	record := s.identity.GetByKey(pubkey)
	if record == nil {
		writeJSON(w, map[string]string{"status": string(store.StatusUnlinked)})
		return
	}

	writeJSON(w, linkView(record))
}

func linkView(record *store.LinkedIdentity) map[string]interface{} {
	return map[string]interface{}{
		"pubkey":       record.PubKey,
		"npub":         record.Npub,
		"address":      record.Address,
		"status":       string(record.Status),
		"privacy_mode": string(record.PrivacyMode),
		"link_tx_id":   record.LinkTxID,
		"linked_at":    record.LinkedAt,
	}
}
