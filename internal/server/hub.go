package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/Tyrowin/groupchat/internal/chat"
)

const envelopeBuffer = 1024

// envelope is one unit of work for the run loop: either an event fan-out or
// a termination of a single user's connection.
type envelope struct {
	kind      chat.EventKind
	payload   []byte
	audience  chat.Audience
	terminate string
}

// Hub tracks the live connection of every signed-in user and fans events out
// to them. All map mutations and send-channel closes happen on the Run
// goroutine.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	envelopes  chan envelope
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	metrics    *Metrics
}

// NewHub creates a Hub. A nil metrics disables instrumentation.
func NewHub(metrics *Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		envelopes:  make(chan envelope, envelopeBuffer),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		metrics:    metrics,
	}
}

// Publish queues ev for every connected user accepted by to. It never waits
// on a client's network write.
func (h *Hub) Publish(ev chat.Event, to chat.Audience) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Error encoding %s event: %v", ev.Kind, err)
		return
	}
	if to == nil {
		to = chat.Everyone
	}
	h.enqueue(envelope{kind: ev.Kind, payload: payload, audience: to})
}

// Terminate closes userID's connection once everything queued before it has
// been written.
func (h *Hub) Terminate(userID string) {
	h.enqueue(envelope{terminate: userID})
}

func (h *Hub) enqueue(env envelope) {
	select {
	case h.envelopes <- env:
	case <-h.ctx.Done():
	}
}

// Register hands a freshly upgraded client to the run loop.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		client.closeConnection()
		return false
	}
}

// ClientCount reports the number of users with an open connection.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Connected reports whether userID currently has a registered connection.
func (h *Hub) Connected(userID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Run starts the hub's event loop. It returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Warnf("Received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			if h.remove(client) {
				log.Infof("Client unregistered for %s from %s. Total clients: %d", client.userID, client.addr, h.ClientCount())
			}

		case env := <-h.envelopes:
			if env.terminate != "" {
				h.handleTerminate(env.terminate)
				continue
			}
			h.handleBroadcast(env)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	previous := h.clients[client.userID]
	h.clients[client.userID] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if previous != nil {
		previous.markClosed()
		close(previous.send)
		log.Infof("Replaced connection for %s from %s", client.userID, previous.addr)
	}
	client.markOpen()
	h.metrics.setConnected(clientCount)
	log.Infof("Client registered for %s from %s. Total clients: %d", client.userID, client.addr, clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// remove drops client if it is still the registered connection for its user
// and closes its send channel.
func (h *Hub) remove(client *Client) bool {
	h.mutex.Lock()
	current, ok := h.clients[client.userID]
	if !ok || current != client {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client.userID)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.markClosed()
	close(client.send)
	h.metrics.setConnected(clientCount)
	return true
}

func (h *Hub) handleTerminate(userID string) {
	h.mutex.RLock()
	client, ok := h.clients[userID]
	h.mutex.RUnlock()
	if !ok {
		return
	}
	if h.remove(client) {
		log.Infof("Terminated connection for %s from %s", userID, client.addr)
	}
}

func (h *Hub) handleBroadcast(env envelope) {
	clients := h.getClientSnapshot()
	h.metrics.published(env.kind)

	var clientsToRemove []*Client
	delivered := 0
	for _, client := range clients {
		if !env.audience(client.userID) {
			continue
		}
		if !h.safeSend(client, env.payload) {
			clientsToRemove = append(clientsToRemove, client)
			continue
		}
		delivered++
	}
	log.Debugf("Broadcast %s to %d clients", env.kind, delivered)

	h.removeFailedClients(clientsToRemove)
}

// safeSend enqueues without blocking; a full buffer is a failed delivery.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	for _, client := range clientsToRemove {
		if h.remove(client) {
			h.metrics.dropped()
			log.Warnf("Client %s from %s removed due to full send buffer", client.userID, client.addr)
		}
	}
}

func (h *Hub) shutdownClients() {
	log.Infof("Shutting down all client connections...")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		h.remove(client)
		client.closeConnection()
	}

	log.Infof("Closed %d client connections", len(clients))
}

// Shutdown stops the run loop, closes every connection and waits for the
// client goroutines to finish or for timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Infof("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Infof("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Warnf("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
