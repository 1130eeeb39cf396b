// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package pubsub

import (
	"errors"
	"fmt"
	"net"
	"strings"

	apitypes "github.com/explorercharts/chartdata/api/types"
)

// HubSignal is the type of a message relayed by the WebsocketHub to its
// clients.
type HubSignal int

const (
	SigPingAndUserCount HubSignal = iota
	SigDatasetUpdate
	SigByeNow
)

var eventIDs = map[HubSignal]string{
	SigPingAndUserCount: apitypes.EventPing,
	SigDatasetUpdate:    apitypes.EventDatasetUpdate,
	SigByeNow:           apitypes.EventBye,
}

func (s HubSignal) String() string {
	str, found := eventIDs[s]
	if !found {
		return "invalid"
	}
	return str
}

// IsValid checks that the signal is known.
func (s HubSignal) IsValid() bool {
	_, found := eventIDs[s]
	return found
}

// HubMessage is a signal with its data. A SigDatasetUpdate message carries a
// *apitypes.DatasetUpdate.
type HubMessage struct {
	Signal HubSignal
	Msg    interface{}
}

func (m HubMessage) String() string {
	if m.Msg == nil {
		return m.Signal.String()
	}
	return fmt.Sprintf("%s:%v", m.Signal, m.Msg)
}

// IsValid checks that the message data has the type its signal requires.
func (m HubMessage) IsValid() bool {
	switch m.Signal {
	case SigDatasetUpdate:
		du, ok := m.Msg.(*apitypes.DatasetUpdate)
		return ok && du != nil
	case SigPingAndUserCount, SigByeNow:
		return true
	}
	return false
}

// ErrWsClosed is the error text of an operation on a closed connection.
const ErrWsClosed = "use of closed network connection"

// IsWSClosedErr checks if the error is from an operation on a closed
// websocket connection.
func IsWSClosedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), ErrWsClosed)
}

// IsIOTimeoutErr checks if the error is a read or write deadline that passed.
func IsIOTimeoutErr(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
