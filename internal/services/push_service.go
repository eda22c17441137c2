package services

import (
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/metrics"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
)

// statusPresentation maps a creation status to the message and progress bar
// value streamed to clients.
var statusPresentation = map[models.CreationStatus]struct {
	Message  string
	Progress int
}{
	models.CreationStatusIdle:                {"", 0},
	models.CreationStatusCheckingBalance:     {"Checking DAI balance...", 10},
	models.CreationStatusApprovingDAI:        {"Approving DAI spending...", 30},
	models.CreationStatusCreatingMeToken:     {"Creating your MeToken...", 50},
	models.CreationStatusWaitingConfirmation: {"Waiting for confirmation...", 70},
	models.CreationStatusPolling:             {"Verifying creation on-chain...", 85},
	models.CreationStatusSuccess:             {"MeToken created successfully!", 100},
	models.CreationStatusError:               {"MeToken creation failed", 100},
}

// BuildState assembles the streamed progress snapshot for a status.
func BuildState(status models.CreationStatus, handle, txHash, meToken, errMsg string) *models.CreationAttemptState {
	p := statusPresentation[status]
	return &models.CreationAttemptState{
		Status:          status,
		Message:         p.Message,
		Progress:        p.Progress,
		OperationHandle: handle,
		TransactionHash: txHash,
		MeTokenAddress:  meToken,
		Error:           errMsg,
	}
}

// PushService fans creation progress out to the initiator's connected
// websocket clients. A missing or dead connection never affects the creation.
type PushService struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]bool
}

// NewPushService builds an empty registry.
func NewPushService() *PushService {
	return &PushService{conns: make(map[string]map[*websocket.Conn]bool)}
}

// Register attaches a connection to its initiator's fan-out set.
func (s *PushService) Register(initiator string, conn *websocket.Conn) {
	key := strings.ToLower(initiator)
	s.mu.Lock()
	if s.conns[key] == nil {
		s.conns[key] = make(map[*websocket.Conn]bool)
	}
	s.conns[key][conn] = true
	s.mu.Unlock()
	metrics.WebSocketConnections.Inc()
	logrus.WithField("initiator", key).Debug("WebSocket client registered")
}

// Unregister detaches and closes a connection.
func (s *PushService) Unregister(initiator string, conn *websocket.Conn) {
	key := strings.ToLower(initiator)
	s.mu.Lock()
	if set, ok := s.conns[key]; ok {
		if set[conn] {
			delete(set, conn)
			metrics.WebSocketConnections.Dec()
		}
		if len(set) == 0 {
			delete(s.conns, key)
		}
	}
	s.mu.Unlock()
	conn.Close()
}

// PushState sends the state snapshot to every connection of the initiator.
// Write failures drop the connection silently.
func (s *PushService) PushState(initiator string, state interface{}) {
	key := strings.ToLower(initiator)

	s.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(s.conns[key]))
	for conn := range s.conns[key] {
		targets = append(targets, conn)
	}
	s.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.WriteJSON(state); err != nil {
			logrus.WithError(err).WithField("initiator", key).Debug("WebSocket write failed, dropping connection")
			s.Unregister(initiator, conn)
		}
	}
}
