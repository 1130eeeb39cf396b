package pubsub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	apitypes "github.com/explorercharts/chartdata/api/types"
	"github.com/explorercharts/chartdata/charts"
	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

// memData is a Snapshotter over fixed snapshots.
type memData map[string]*dataset.Snapshot

func (m memData) Snapshot(id string) (*dataset.Snapshot, error) {
	snap, found := m[id]
	if !found {
		return nil, dataset.ErrNotLoaded
	}
	return snap, nil
}

// networkSnapshot has n points 100 blocks apart.
func networkSnapshot(n int, revision uint64) *dataset.Snapshot {
	snap := &dataset.Snapshot{
		ID:       dataset.Network,
		Heights:  make([]int64, n),
		Times:    make([]int64, n),
		Columns:  make(map[string]sampler.Series),
		Revision: revision,
	}
	cols := []string{"difficulty", "blocktime", dataset.ColBlockSize, dataset.ColTxs,
		dataset.ColFees, dataset.ColFeePerByte, "fees_perKb"}
	for _, c := range cols {
		snap.Columns[c] = make(sampler.Series, n)
	}
	for i := 0; i < n; i++ {
		snap.Heights[i] = int64(100 * i)
		snap.Times[i] = int64(1577836800 + 6000*i)
		snap.Columns["difficulty"][i] = float64(i)
	}
	return snap
}

func newSession(data memData) *session {
	return &session{
		board:        charts.NewBoard(charts.DefaultRegistry(), data, "en"),
		numClients:   func() int { return 7 },
		requestLimit: maxPayloadBytes,
	}
}

func wsMessage(event, msg string) *apitypes.WebSocketMessage {
	return &apitypes.WebSocketMessage{EventId: event, Message: json.RawMessage(msg)}
}

func decodeError(t *testing.T, msg *apitypes.WebSocketMessage) *apitypes.ErrorResponse {
	t.Helper()
	if msg.EventId != apitypes.EventError {
		t.Fatalf("expected an error event, got %s: %s", msg.EventId, string(msg.Message))
	}
	resp := new(apitypes.ErrorResponse)
	if err := json.Unmarshal(msg.Message, resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeFrame(t *testing.T, msg *apitypes.WebSocketMessage) *charts.Frame {
	t.Helper()
	if msg.EventId != apitypes.EventChart {
		t.Fatalf("expected a chart event, got %s: %s", msg.EventId, string(msg.Message))
	}
	f := new(charts.Frame)
	if err := json.Unmarshal(msg.Message, f); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestSessionHandleMessage(t *testing.T) {
	sess := newSession(memData{dataset.Network: networkSnapshot(1000, 1)})

	msgs := sess.handleMessage(wsMessage(apitypes.EventInit, `{"charts":["canv_net_01","canv_net_09"]}`))
	if len(msgs) != 2 {
		t.Fatalf("init answered with %d messages", len(msgs))
	}
	f := decodeFrame(t, msgs[0])
	if f.Chart != charts.Difficulty || f.Range != (sampler.Range{From: 1, To: 999}) {
		t.Errorf("initial frame %s %+v", f.Chart, f.Range)
	}
	if resp := decodeError(t, msgs[1]); resp.Chart != "canv_net_09" || resp.Error != "canv_net_09 not found" {
		t.Errorf("unknown chart error %+v", resp)
	}

	msgs = sess.handleMessage(wsMessage(apitypes.EventSetRange, `{"chart":"difficulty","range":"last_day"}`))
	f = decodeFrame(t, msgs[0])
	if f.Range != (sampler.Range{From: 985, To: 999}) {
		t.Errorf("last_day range %+v", f.Range)
	}

	// An invalid range leaves the chart as it was.
	msgs = sess.handleMessage(wsMessage(apitypes.EventSetRange, `{"chart":"difficulty","from":5000,"to":1000}`))
	if resp := decodeError(t, msgs[0]); resp.Error != sampler.InvalidRangeMessage {
		t.Errorf("invalid range error %q", resp.Error)
	}
	kept, err := sess.board.Frame(charts.Difficulty)
	if err != nil {
		t.Fatal(err)
	}
	if kept.Range != (sampler.Range{From: 985, To: 999}) {
		t.Errorf("range changed to %+v", kept.Range)
	}

	msgs = sess.handleMessage(wsMessage(apitypes.EventSetAxis, `{"chart":"difficulty","axis":"time"}`))
	f = decodeFrame(t, msgs[0])
	if f.Set != sampler.LabelsetTime || len(f.Labels) != len(f.Hidden) {
		t.Errorf("axis %s with %d/%d labels", f.Set, len(f.Labels), len(f.Hidden))
	}

	msgs = sess.handleMessage(wsMessage(apitypes.EventSetAxis, `{"chart":"difficulty","axis":"z"}`))
	decodeError(t, msgs[0])

	// The axis of a chart that was never drawn cannot change.
	msgs = sess.handleMessage(wsMessage(apitypes.EventSetAxis, `{"chart":"blocksize","axis":"time"}`))
	if resp := decodeError(t, msgs[0]); resp.Error != "blocksize: "+string(charts.ErrNotOnBoard) {
		t.Errorf("undrawn chart axis error %q", resp.Error)
	}

	msgs = sess.handleMessage(wsMessage(apitypes.EventSetRange, `{"chart":`))
	decodeError(t, msgs[0])

	msgs = sess.handleMessage(wsMessage("subscribe", `{}`))
	if resp := decodeError(t, msgs[0]); resp.Error != `unknown event "subscribe"` {
		t.Errorf("unknown event error %q", resp.Error)
	}
}

func TestSessionInitAll(t *testing.T) {
	sess := newSession(memData{dataset.Network: networkSnapshot(200, 1)})
	msgs := sess.handleMessage(&apitypes.WebSocketMessage{EventId: apitypes.EventInit})
	// Only the network charts have data.
	want := charts.DefaultRegistry().ForDataset(dataset.Network)
	if len(msgs) != len(want) {
		t.Fatalf("%d charts drawn, expected %d", len(msgs), len(want))
	}
	for i, msg := range msgs {
		if f := decodeFrame(t, msg); f.Chart != want[i] {
			t.Errorf("chart %d is %s, expected %s", i, f.Chart, want[i])
		}
	}
}

func TestSessionHubMessage(t *testing.T) {
	data := memData{dataset.Network: networkSnapshot(500, 1)}
	sess := newSession(data)
	sess.handleMessage(wsMessage(apitypes.EventSetRange, `{"chart":"difficulty","range":"last_week"}`))

	msgs := sess.hubMessage(HubMessage{Signal: SigPingAndUserCount})
	if len(msgs) != 1 || msgs[0].EventId != apitypes.EventPing || string(msgs[0].Message) != "7" {
		t.Errorf("ping %+v", msgs)
	}

	data[dataset.Network] = networkSnapshot(600, 2)
	du := &apitypes.DatasetUpdate{ID: dataset.Network, Revision: 2, Points: 600, LastHeight: 59900}
	msgs = sess.hubMessage(HubMessage{Signal: SigDatasetUpdate, Msg: du})
	if len(msgs) != 2 {
		t.Fatalf("dataset update sent %d messages", len(msgs))
	}
	if msgs[0].EventId != apitypes.EventDatasetUpdate {
		t.Errorf("first event %s", msgs[0].EventId)
	}
	f := decodeFrame(t, msgs[1])
	// The last week is kept, over the new data.
	if f.Revision != 2 || f.Range != (sampler.Range{From: 500, To: 599}) {
		t.Errorf("refreshed frame revision %d range %+v", f.Revision, f.Range)
	}

	msgs = sess.hubMessage(HubMessage{Signal: SigDatasetUpdate, Msg: &apitypes.DatasetUpdate{ID: dataset.Supply}})
	if len(msgs) != 1 {
		t.Errorf("supply update sent %d messages", len(msgs))
	}
}

func TestHubMessageIsValid(t *testing.T) {
	tests := []struct {
		name string
		msg  HubMessage
		want bool
	}{
		{"ping", HubMessage{Signal: SigPingAndUserCount}, true},
		{"bye", HubMessage{Signal: SigByeNow}, true},
		{"update", HubMessage{Signal: SigDatasetUpdate, Msg: &apitypes.DatasetUpdate{ID: "network"}}, true},
		{"update value", HubMessage{Signal: SigDatasetUpdate, Msg: apitypes.DatasetUpdate{ID: "network"}}, false},
		{"update nil", HubMessage{Signal: SigDatasetUpdate}, false},
		{"unknown", HubMessage{Signal: HubSignal(42)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func waitClients(t *testing.T, counts <-chan int, want int) {
	t.Helper()
	for {
		select {
		case n := <-counts:
			if n == want {
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d clients", want)
		}
	}
}

func TestWebsocketHubClients(t *testing.T) {
	counts := make(chan int, 16)
	hub := NewWebsocketHub(func(n int) { counts <- n })
	go hub.Run()

	spoke := hub.NewClientHubSpoke()
	waitClients(t, counts, 1)
	if hub.NumClients() != 1 {
		t.Errorf("NumClients() = %d", hub.NumClients())
	}

	du := &apitypes.DatasetUpdate{ID: dataset.Github}
	if !hub.Relay(HubMessage{Signal: SigDatasetUpdate, Msg: du}) {
		t.Fatal("relay refused")
	}
	select {
	case msg := <-*spoke.c:
		if msg.Signal != SigDatasetUpdate || msg.Msg != du {
			t.Errorf("received %s", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message relayed")
	}

	close(spoke.cl.killed)
	hub.UnregisterClient(spoke)
	waitClients(t, counts, 0)
	if _, open := <-*spoke.c; open {
		t.Errorf("spoke not closed")
	}

	hub.Stop()
	if hub.NewClientHubSpoke() != nil {
		t.Errorf("registered with a stopped hub")
	}
	if hub.Relay(HubMessage{Signal: SigPingAndUserCount}) {
		t.Errorf("relayed by a stopped hub")
	}
}

func TestWebSocketHandler(t *testing.T) {
	data := memData{dataset.Network: networkSnapshot(500, 1)}
	counts := make(chan int, 16)
	hub := NewChartHub(charts.DefaultRegistry(), data, "en", func(n int) { counts <- n })
	server := httptest.NewServer(http.HandlerFunc(hub.WebSocketHandler))
	defer server.Close()
	defer hub.StopWebsocketHub()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatal(err)
	}

	receive := func() *apitypes.WebSocketMessage {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		msg := new(apitypes.WebSocketMessage)
		if err := websocket.JSON.Receive(ws, msg); err != nil {
			t.Fatal(err)
		}
		return msg
	}

	req := wsMessage(apitypes.EventSetRange, `{"chart":"canv_net_01","range":"last_week"}`)
	if err = websocket.JSON.Send(ws, req); err != nil {
		t.Fatal(err)
	}
	if f := decodeFrame(t, receive()); f.Chart != charts.Difficulty {
		t.Errorf("chart %s", f.Chart)
	}

	data[dataset.Network] = networkSnapshot(501, 2)
	hub.DatasetUpdated(data[dataset.Network])
	if msg := receive(); msg.EventId != apitypes.EventDatasetUpdate {
		t.Errorf("expected datasetupdate, got %s", msg.EventId)
	}
	if f := decodeFrame(t, receive()); f.Revision != 2 {
		t.Errorf("refreshed revision %d", f.Revision)
	}

	ws.Close()
	waitClients(t, counts, 0)
}
