// Package push implements the push-channel registry and its wire frames:
// the tagged variant WireFrame = Connected | Pong | StatusUpdate referenced
// in the component design notes, replacing a dynamically-shaped payload
// with a discriminated Go type.
package push

import (
	"fmt"
	"time"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/jsonutil"
)

// FrameKind discriminates the three wire frame shapes a subscriber can
// receive.
type FrameKind string

const (
	FrameConnected    FrameKind = "connected"
	FramePong         FrameKind = "pong"
	FrameStatusUpdate FrameKind = "status_update"
)

// Frame is the tagged union sent to push-channel subscribers. Only the
// fields relevant to Kind are populated; MarshalJSON projects it onto the
// matching wire shape.
type Frame struct {
	Kind          FrameKind
	OrderID       string
	Status        order.Status
	DexType       *order.DexType
	ExecutedPrice *string
	TxHash        *string
	ErrorReason   *string
	Timestamp     time.Time
}

// ConnectedFrame builds the frame sent immediately on subscribe.
func ConnectedFrame(orderID string, at time.Time) Frame {
	return Frame{Kind: FrameConnected, OrderID: orderID, Timestamp: at}
}

// PongFrame builds the reply to a client-sent ping.
func PongFrame(at time.Time) Frame {
	return Frame{Kind: FramePong, Timestamp: at}
}

// StatusUpdateFrame projects a StatusEvent onto its wire frame.
func StatusUpdateFrame(event order.StatusEvent) Frame {
	return Frame{
		Kind:          FrameStatusUpdate,
		OrderID:       event.OrderID,
		Status:        event.Status,
		DexType:       event.DexType,
		ExecutedPrice: event.ExecutedPrice,
		TxHash:        event.TxHash,
		ErrorReason:   event.ErrorReason,
		Timestamp:     event.Timestamp,
	}
}

type wireConnected struct {
	Type      string `json:"type"`
	OrderID   string `json:"orderId"`
	Timestamp string `json:"timestamp"`
}

type wirePong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type wireStatusUpdate struct {
	Type          string         `json:"type"`
	OrderID       string         `json:"orderId"`
	Status        order.Status   `json:"status"`
	DexType       *order.DexType `json:"dexType,omitempty"`
	ExecutedPrice *string        `json:"executedPrice,omitempty"`
	TxHash        *string        `json:"txHash,omitempty"`
	ErrorReason   *string        `json:"errorReason,omitempty"`
	Timestamp     string         `json:"timestamp"`
}

// MarshalJSON renders the frame using goccy/go-json, matching the exact
// shapes documented for the push-channel endpoint.
func (f Frame) MarshalJSON() ([]byte, error) {
	ts := f.Timestamp.UTC().Format(time.RFC3339Nano)
	switch f.Kind {
	case FrameConnected:
		return jsonutil.Encode(wireConnected{Type: string(FrameConnected), OrderID: f.OrderID, Timestamp: ts})
	case FramePong:
		return jsonutil.Encode(wirePong{Type: string(FramePong), Timestamp: ts})
	case FrameStatusUpdate:
		return jsonutil.Encode(wireStatusUpdate{
			Type:          string(FrameStatusUpdate),
			OrderID:       f.OrderID,
			Status:        f.Status,
			DexType:       f.DexType,
			ExecutedPrice: f.ExecutedPrice,
			TxHash:        f.TxHash,
			ErrorReason:   f.ErrorReason,
			Timestamp:     ts,
		})
	default:
		return nil, fmt.Errorf("push: unknown frame kind %q", f.Kind)
	}
}
