// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	apitypes "github.com/explorercharts/chartdata/api/types"
	"github.com/explorercharts/chartdata/charts"
	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 60 * time.Second

	requestBufferSize = 8
)

// ChartHub serves the charts of a registry to websocket clients. Each
// connection has its own charts.Board, so clients select ranges and axes
// independently, and every chart a client shows is redrawn when its dataset
// is updated.
type ChartHub struct {
	registry *charts.Registry
	data     charts.Snapshotter
	locale   string
	wsHub    *WebsocketHub
}

// NewChartHub constructs a ChartHub. The WebsocketHub is automatically
// started. clientsChanged, if not nil, is called with the number of clients
// each time a client connects or disconnects.
func NewChartHub(registry *charts.Registry, data charts.Snapshotter, locale string, clientsChanged func(int)) *ChartHub {
	ch := &ChartHub{
		registry: registry,
		data:     data,
		locale:   locale,
		wsHub:    NewWebsocketHub(clientsChanged),
	}
	go ch.wsHub.Run()
	return ch
}

// StopWebsocketHub stops the websocket hub.
func (ch *ChartHub) StopWebsocketHub() {
	if ch == nil {
		return
	}
	log.Info("Stopping websocket hub.")
	ch.wsHub.Stop()
}

// NumClients is the number of connected websocket clients.
func (ch *ChartHub) NumClients() int {
	return ch.wsHub.NumClients()
}

// DatasetUpdated signals the clients that a dataset was replaced. It has the
// signature of the dataset.Store update listeners.
func (ch *ChartHub) DatasetUpdated(snap *dataset.Snapshot) {
	msg := HubMessage{
		Signal: SigDatasetUpdate,
		Msg: &apitypes.DatasetUpdate{
			ID:         snap.ID,
			Revision:   snap.Revision,
			Points:     snap.Len(),
			LastHeight: snap.LastHeight(),
		},
	}
	if !ch.wsHub.Relay(msg) {
		log.Debugf("Hub stopping. Not relaying %s.", msg)
	}
}

type connection struct {
	sync.WaitGroup
	ws     *websocket.Conn
	client *clientHubSpoke
	// requests from the receive loop are handled by the send loop.
	requests chan *apitypes.WebSocketMessage
	// recvDone is closed when the receive loop returns, sendDone when the
	// send loop returns.
	recvDone chan struct{}
	sendDone chan struct{}
}

// closeWS attempts to close a websocket.Conn, logging errors other than those
// with messages containing ErrWsClosed.
func closeWS(ws *websocket.Conn) {
	err := ws.Close()
	// Do not log error if connection is just closed
	if err != nil && !IsWSClosedErr(err) && !IsIOTimeoutErr(err) {
		log.Errorf("Failed to close websocket: %v", err)
	}
}

// receiveLoop receives incoming messages from an active websocket connection
// and queues them for the send loop. receiveLoop returns when the connection
// is closed, which the send loop does when it returns.
func (ch *ChartHub) receiveLoop(conn *connection) {
	defer conn.Done()
	defer close(conn.recvDone)

	ws := conn.ws
	for {
		// Set this Conn's read deadline.
		err := ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if err != nil && !IsWSClosedErr(err) {
			log.Warnf("SetReadDeadline: %v", err)
		}

		msg := new(apitypes.WebSocketMessage)
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			// Keep listening for new messages if the read deadline has passed.
			if IsIOTimeoutErr(err) {
				continue
			}
			// EOF is a common client disconnected error.
			if !errors.Is(err, io.EOF) && !IsWSClosedErr(err) {
				log.Warnf("websocket client receive error: %v", err)
			}
			return
		}

		select {
		case conn.requests <- msg:
		case <-conn.sendDone:
			return
		}
	}
}

// sendLoop handles the client's requests and the signals from the
// WebsocketHub, and sends the resulting messages to the client. It owns the
// client's Board. sendLoop returns when the client's signal channel is closed
// or the receive loop returns, and then closes the websocket connection.
func (ch *ChartHub) sendLoop(conn *connection) {
	defer conn.Done()
	defer close(conn.sendDone)

	ws := conn.ws
	defer closeWS(ws)

	updateSigChan := *conn.client.c
	clientID := conn.client.cl.id
	sess := &session{
		board:        charts.NewBoard(ch.registry, ch.data, ch.locale),
		numClients:   ch.wsHub.NumClients,
		requestLimit: ch.wsHub.requestLimit,
	}

	for {
		var msgs []*apitypes.WebSocketMessage
		select {
		case sig, ok := <-updateSigChan:
			if !ok {
				return
			}
			log.Tracef("sendLoop: signaling client %d with %s", clientID, sig)
			msgs = sess.hubMessage(sig)
		case req := <-conn.requests:
			log.Tracef("sendLoop: client %d requested %s", clientID, req.EventId)
			msgs = sess.handleMessage(req)
		case <-conn.recvDone:
			return
		}

		for _, msg := range msgs {
			err := ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err != nil && !IsWSClosedErr(err) {
				log.Warnf("SetWriteDeadline failed: %v", err)
			}
			if err = websocket.JSON.Send(ws, msg); err != nil {
				// If the send failed, the client is probably gone.
				if !IsWSClosedErr(err) {
					log.Debugf("websocket.JSON.Send of %s message to client %d failed: %v",
						msg.EventId, clientID, err)
				}
				return
			}
		}
	}
}

// WebSocketHandler is the http.HandlerFunc for new websocket connections. The
// connection is registered with the WebsocketHub, and the send/receive loops
// are launched.
func (ch *ChartHub) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	// Register websocket client.
	spoke := ch.wsHub.NewClientHubSpoke()
	if spoke == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	wsHandler := websocket.Handler(func(ws *websocket.Conn) {
		// Set the max payload size for this connection.
		ws.MaxPayloadBytes = ch.wsHub.requestLimit

		conn := &connection{
			ws:       ws,
			client:   spoke,
			requests: make(chan *apitypes.WebSocketMessage, requestBufferSize),
			recvDone: make(chan struct{}),
			sendDone: make(chan struct{}),
		}

		conn.Add(1)
		go ch.receiveLoop(conn)

		conn.Add(1)
		go ch.sendLoop(conn)

		// Hang out until the send and receive loops have quit.
		conn.Wait()
	})

	// Use a websocket.Server to avoid checking Origin.
	wsServer := websocket.Server{
		Handler: wsHandler,
	}
	wsServer.ServeHTTP(w, r)

	close(spoke.cl.killed)
	ch.wsHub.UnregisterClient(spoke)
}

// session handles the messages of one client with the client's Board. It is
// only used from the client's send loop.
type session struct {
	board        *charts.Board
	numClients   func() int
	requestLimit int
}

func newMessage(event string, msg interface{}) *apitypes.WebSocketMessage {
	wsMsg, err := apitypes.NewWebSocketMessage(event, msg)
	if err != nil {
		log.Errorf("Failed to encode %s message: %v", event, err)
		return &apitypes.WebSocketMessage{EventId: apitypes.EventError,
			Message: json.RawMessage(`{"error":"internal error"}`)}
	}
	return wsMsg
}

// errorMessage makes the error event for a failed request. An invalid range
// is reported with the message shown by the explorer pages.
func errorMessage(err error, chartID string) *apitypes.WebSocketMessage {
	resp := &apitypes.ErrorResponse{Error: err.Error(), Chart: chartID}
	var invalidRange *sampler.InvalidRangeError
	var unknownChart *charts.UnknownChartIDError
	switch {
	case errors.As(err, &invalidRange):
		resp.Error = sampler.InvalidRangeMessage
	case errors.As(err, &unknownChart):
		log.Warnf("Client requested %v", err)
	default:
		log.Debugf("Request for chart %q failed: %v", chartID, err)
	}
	return newMessage(apitypes.EventError, resp)
}

func chartMessage(f *charts.Frame) *apitypes.WebSocketMessage {
	return newMessage(apitypes.EventChart, f)
}

// handleMessage applies a client request to the board. Each request is
// answered with chart events for the charts drawn, or an error event.
func (s *session) handleMessage(msg *apitypes.WebSocketMessage) []*apitypes.WebSocketMessage {
	if len(msg.Message) > s.requestLimit {
		log.Debug("Request size over limit")
		return []*apitypes.WebSocketMessage{errorMessage(errors.New("request too large"), "")}
	}

	switch msg.EventId {
	case apitypes.EventInit:
		var req apitypes.InitRequest
		if len(msg.Message) > 0 {
			if err := json.Unmarshal(msg.Message, &req); err != nil {
				return []*apitypes.WebSocketMessage{errorMessage(fmt.Errorf("invalid init request: %w", err), "")}
			}
		}
		if len(req.Charts) == 0 {
			frames := s.board.InitAll()
			msgs := make([]*apitypes.WebSocketMessage, 0, len(frames))
			for _, f := range frames {
				msgs = append(msgs, chartMessage(f))
			}
			return msgs
		}
		msgs := make([]*apitypes.WebSocketMessage, 0, len(req.Charts))
		for _, id := range req.Charts {
			f, err := s.board.Init(id)
			if err != nil {
				msgs = append(msgs, errorMessage(err, id))
				continue
			}
			msgs = append(msgs, chartMessage(f))
		}
		return msgs

	case apitypes.EventSetRange:
		var req apitypes.RangeRequest
		if err := json.Unmarshal(msg.Message, &req); err != nil {
			return []*apitypes.WebSocketMessage{errorMessage(fmt.Errorf("invalid range request: %w", err), "")}
		}
		sel, err := req.Selection()
		if err != nil {
			return []*apitypes.WebSocketMessage{errorMessage(err, req.Chart)}
		}
		var f *charts.Frame
		if sel == nil {
			f, err = s.board.Init(req.Chart)
		} else {
			f, err = s.board.SetRange(req.Chart, *sel)
		}
		if err != nil {
			return []*apitypes.WebSocketMessage{errorMessage(err, req.Chart)}
		}
		return []*apitypes.WebSocketMessage{chartMessage(f)}

	case apitypes.EventSetAxis:
		var req apitypes.AxisRequest
		if err := json.Unmarshal(msg.Message, &req); err != nil {
			return []*apitypes.WebSocketMessage{errorMessage(fmt.Errorf("invalid axis request: %w", err), "")}
		}
		set, err := sampler.ParseLabelset(req.Axis)
		if err != nil {
			return []*apitypes.WebSocketMessage{errorMessage(err, req.Chart)}
		}
		f, err := s.board.SetAxis(req.Chart, set)
		if err != nil {
			return []*apitypes.WebSocketMessage{errorMessage(err, req.Chart)}
		}
		return []*apitypes.WebSocketMessage{chartMessage(f)}
	}

	return []*apitypes.WebSocketMessage{errorMessage(fmt.Errorf("unknown event %q", msg.EventId), "")}
}

// hubMessage makes the messages for a WebsocketHub signal. A dataset update
// is followed by the redrawn charts of that dataset.
func (s *session) hubMessage(sig HubMessage) []*apitypes.WebSocketMessage {
	switch sig.Signal {
	case SigPingAndUserCount:
		// No quotes as this is a JSON integer.
		return []*apitypes.WebSocketMessage{{
			EventId: apitypes.EventPing,
			Message: json.RawMessage(strconv.Itoa(s.numClients())),
		}}
	case SigByeNow:
		return []*apitypes.WebSocketMessage{{
			EventId: apitypes.EventBye,
			Message: json.RawMessage(`"The chartdata server is shutting down. Bye!"`),
		}}
	case SigDatasetUpdate:
		du, ok := sig.Msg.(*apitypes.DatasetUpdate)
		if !ok || du == nil {
			log.Errorf("SigDatasetUpdate did not store a *DatasetUpdate in Msg.")
			return nil
		}
		frames := s.board.Refresh(du.ID)
		msgs := make([]*apitypes.WebSocketMessage, 0, len(frames)+1)
		msgs = append(msgs, newMessage(apitypes.EventDatasetUpdate, du))
		for _, f := range frames {
			msgs = append(msgs, chartMessage(f))
		}
		return msgs
	}
	log.Errorf("Not sending a %v to the client.", sig)
	return nil
}
