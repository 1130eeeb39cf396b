// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package pubsub

import (
	"sync/atomic"
	"time"
)

type hubSpoke chan HubMessage

const (
	// PingInterval is how frequently the server will ping all clients. The
	// clients should set their read deadlines to more than this.
	PingInterval = 30 * time.Second

	maxPayloadBytes = 1 << 20
)

// WebsocketHub and its event loop manage all websocket client connections.
// WebsocketHub is responsible for closing all connections registered with it.
// If the event loop is running, calling (*WebsocketHub).Stop() will handle it.
type WebsocketHub struct {
	clients       map[*hubSpoke]*client
	numClients    atomic.Value
	Register      chan *clientHubSpoke
	Unregister    chan *hubSpoke
	HubRelay      chan HubMessage
	quitWSHandler chan struct{}
	killed        chan struct{}
	requestLimit  int
	pingInterval  time.Duration

	// clientsChanged, if set, is called from the run loop with the number of
	// clients after each change.
	clientsChanged func(int)
}

type client struct {
	id     uint64
	killed chan struct{}
}

func newClient() *client {
	return &client{
		id:     newClientID(),
		killed: make(chan struct{}),
	}
}

// NewWebsocketHub creates a new WebsocketHub. clientsChanged may be nil.
func NewWebsocketHub(clientsChanged func(int)) *WebsocketHub {
	return &WebsocketHub{
		clients:        make(map[*hubSpoke]*client),
		Register:       make(chan *clientHubSpoke),
		Unregister:     make(chan *hubSpoke),
		HubRelay:       make(chan HubMessage),
		quitWSHandler:  make(chan struct{}),
		killed:         make(chan struct{}),
		requestLimit:   maxPayloadBytes, // 1 MB
		pingInterval:   PingInterval,
		clientsChanged: clientsChanged,
	}
}

// clientHubSpoke associates a client with its WebsocketHub communication
// channel.
type clientHubSpoke struct {
	cl *client
	c  *hubSpoke
}

var idCounter uint64

func newClientID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// NewClientHubSpoke registers a connection with the hub, and returns a pointer
// to the new client data object. Use UnregisterClient on this object to stop
// signaling messages, and close the signal channel. The result is nil if the
// hub is stopping.
func (wsh *WebsocketHub) NewClientHubSpoke() *clientHubSpoke {
	c := make(hubSpoke, 16)
	ch := &clientHubSpoke{
		cl: newClient(),
		c:  &c,
	}
	select {
	case wsh.Register <- ch:
		return ch
	case <-wsh.quitWSHandler:
		return nil
	}
}

// NumClients returns the number of clients connected to the websocket hub.
func (wsh *WebsocketHub) NumClients() int {
	// Swallow any type assertion error since the default int of 0 is OK.
	n, _ := wsh.numClients.Load().(int)
	return n
}

func (wsh *WebsocketHub) setNumClients(n int) {
	wsh.numClients.Store(n)
	if wsh.clientsChanged != nil {
		wsh.clientsChanged(n)
	}
}

// registerClient should only be called from the run loop.
func (wsh *WebsocketHub) registerClient(ch *clientHubSpoke) {
	wsh.clients[ch.c] = ch.cl
	wsh.setNumClients(len(wsh.clients))
	log.Debugf("Registered new websocket client (%d).", wsh.NumClients())
}

// UnregisterClient unregisters the client with the hub and closes the client's
// update signal channel. The client's killed channel must be closed first. It
// returns without waiting if the hub is stopping.
func (wsh *WebsocketHub) UnregisterClient(ch *clientHubSpoke) {
	select {
	case wsh.Unregister <- ch.c:
	case <-wsh.quitWSHandler:
	}
}

// unregisterClient should only be called from the loop in run().
func (wsh *WebsocketHub) unregisterClient(c *hubSpoke) {
	cl, ok := wsh.clients[c]
	if !ok {
		// Already gone, do not close channel.
		log.Tracef("unknown client")
		return
	}
	delete(wsh.clients, c)
	wsh.setNumClients(len(wsh.clients))

	close(*c)
	<-cl.killed
}

// unregisterAllClients should only be called from the loop in run() or when no
// other goroutines are accessing the clients map.
func (wsh *WebsocketHub) unregisterAllClients() {
	spokes := make([]*hubSpoke, 0, len(wsh.clients))
	// A client's killed channel is closed when the http.HandlerFunc returns.
	kills := make([]chan struct{}, 0, len(wsh.clients))
	for c, cl := range wsh.clients {
		spokes = append(spokes, c)
		kills = append(kills, cl.killed)
	}

	// Closing the client hubSpoke terminates the connection's send loop, and
	// thus the http.HandlerFunc.
	for _, c := range spokes {
		delete(wsh.clients, c)
		close(*c)
	}
	wsh.setNumClients(0)

	for _, k := range kills {
		<-k
	}
	log.Debugf("Unregistered and killed %d clients.", len(kills))
}

// Periodically ping clients over websocket connection. Stop the ping loop by
// closing the returned channel.
func (wsh *WebsocketHub) pingClients() chan<- struct{} {
	stopPing := make(chan struct{})

	go func() {
		ticker := time.NewTicker(wsh.pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				select {
				case wsh.HubRelay <- HubMessage{Signal: SigPingAndUserCount}:
				case <-stopPing:
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	return stopPing
}

// Relay sends a message to the run loop. It returns false if the hub is
// stopping.
func (wsh *WebsocketHub) Relay(msg HubMessage) bool {
	select {
	case wsh.HubRelay <- msg:
		return true
	case <-wsh.quitWSHandler:
		return false
	}
}

// Stop kills the run() loop and unregisters all clients (connections).
func (wsh *WebsocketHub) Stop() {
	// Tell the clients we're forcibly stopping the connection.
	select {
	case wsh.HubRelay <- HubMessage{Signal: SigByeNow}:
	case <-time.After(time.Second):
		log.Warnf("Run loop not receiving. Skipping the bye message.")
	}

	// End the Run() loop, allowing in progress operations to complete. Do not
	// close HubRelay since there are multiple senders.
	close(wsh.quitWSHandler)

	// Wait for Run and its defers to complete.
	select {
	case <-time.NewTimer(5 * time.Second).C:
		log.Warnf("Timed out waiting for Run loop to terminate.")
	case <-wsh.killed:
	}
}

// Run starts the main event loop, which handles the following: 1. receiving
// signals on the WebsocketHub's HubRelay and broadcasting them to all
// registered clients, 2. registering clients, 3. unregistering clients, and 4.
// handling the shutdown signal from Stop.
func (wsh *WebsocketHub) Run() {
	log.Info("Starting WebsocketHub run loop.")

	defer close(wsh.killed) // must be last since this is a sentinel

	stopPing := wsh.pingClients()
	defer close(stopPing)

	defer func() {
		// Drain the receiving channels so that goroutines presently sending
		// on HubRelay do not hang.
		for {
			select {
			case <-wsh.HubRelay:
			default:
				return
			}
		}
	}()

	// Unregister and wait for each client to shutdown.
	defer wsh.unregisterAllClients()

	// Only use sendMsg and sendToAll from inside the loop.
	sendMsg := func(spoke *hubSpoke, client *client, hubMsg HubMessage) {
		// Signal or unregister the client.
		timer := time.NewTimer(5 * time.Second)
		defer timer.Stop()
		select {
		case <-client.killed:
			log.Tracef("Unable to send %s message to client %d: gone (killed)",
				hubMsg, client.id)
			wsh.unregisterClient(spoke)
		case *spoke <- hubMsg:
			log.Tracef("Sent %s message to client %d.", hubMsg, client.id)
		case <-timer.C:
			log.Errorf("Timeout sending %s message to client %d.", hubMsg, client.id)
		}
	}

	sendToAll := func(hubMsg HubMessage) {
		for spoke, client := range wsh.clients {
			sendMsg(spoke, client, hubMsg)
		}
	}

	for {
		select {
		case hubMsg, ok := <-wsh.HubRelay:
			if !ok {
				log.Debugf("wsh.HubRelay closed.")
				return
			}
			clientsCount := len(wsh.clients)
			if clientsCount == 0 {
				break
			}

			if !hubMsg.IsValid() {
				log.Warnf("Invalid message on HubRelay: %s", hubMsg)
				break
			}

			switch hubMsg.Signal {
			case SigPingAndUserCount:
				log.Tracef("Signaling ping/user count to %d websocket clients.", clientsCount)
			case SigDatasetUpdate:
				log.Infof("Signaling %s to %d websocket clients.", hubMsg, clientsCount)
			case SigByeNow:
				log.Infof("Warning all %d clients of impending hang-up.", clientsCount)
			}
			sendToAll(hubMsg)

		case ch := <-wsh.Register:
			wsh.registerClient(ch)

		case c := <-wsh.Unregister:
			wsh.unregisterClient(c)

		case <-wsh.quitWSHandler:
			return
		}
	}
}
