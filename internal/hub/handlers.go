package hub

import (
	"errors"
	"fmt"
	"time"

	"github.com/c3i/globe/internal/dispatcher"
	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/internal/metrics"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/c3i/globe/pkg/streaming"
)

var errDecode = errors.New("malformed payload")

func (h *Hub) registerHandlers() {
	h.disp.Register(streaming.TypeSubscribe, h.handleSubscribe, dispatcher.Logged())
	h.disp.Register(streaming.TypeUnsubscribe, h.handleUnsubscribe, dispatcher.Logged())
	h.disp.Register(streaming.TypeAddWaypoint, h.handleAdd, dispatcher.Logged())
	h.disp.Register(streaming.TypeUpdateWaypoint, h.handleUpdate, dispatcher.Logged())
	h.disp.Register(streaming.TypeDeleteWaypoint, h.handleDelete, dispatcher.Logged())
}

func (h *Hub) handleSubscribe(e dispatcher.Event) (any, error) {
	c := clientFrom(e.Ctx())
	if c == nil {
		return nil, errors.New("subscribe outside a client connection")
	}
	c.subscribe()
	return nil, nil
}

func (h *Hub) handleUnsubscribe(e dispatcher.Event) (any, error) {
	if c := clientFrom(e.Ctx()); c != nil {
		c.unsubscribe()
	}
	return nil, nil
}

func (h *Hub) handleAdd(e dispatcher.Event) (any, error) {
	var p streaming.AddWaypointPayload
	if err := decode(e, &p); err != nil {
		return h.finish(e.Command, p.RequestID, "", err, time.Now())
	}

	wp := p.Waypoint
	if err := geo.ValidateLatLon(wp.Coords.Lat, wp.Coords.Lon); err != nil {
		return h.finish(e.Command, p.RequestID, "", err, time.Now())
	}
	wp.Coords.Lon = geo.NormalizeLon(wp.Coords.Lon)
	if wp.CreatedBy == "" {
		wp.CreatedBy = e.User
	}

	start := time.Now()
	id, err := h.storeOf(e).Add(e.Ctx(), wp)
	return h.finish(e.Command, p.RequestID, id, err, start)
}

func (h *Hub) handleUpdate(e dispatcher.Event) (any, error) {
	var p streaming.UpdateWaypointPayload
	if err := decode(e, &p); err != nil {
		return h.finish(e.Command, p.RequestID, "", err, time.Now())
	}
	start := time.Now()
	err := h.storeOf(e).Update(e.Ctx(), p.ID, p.Patch)
	return h.finish(e.Command, p.RequestID, p.ID, err, start)
}

func (h *Hub) handleDelete(e dispatcher.Event) (any, error) {
	var p streaming.DeleteWaypointPayload
	if err := decode(e, &p); err != nil {
		return h.finish(e.Command, p.RequestID, "", err, time.Now())
	}
	start := time.Now()
	err := h.storeOf(e).Delete(e.Ctx(), p.ID)
	return h.finish(e.Command, p.RequestID, p.ID, err, start)
}

func decode(e dispatcher.Event, v any) error {
	if err := e.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errDecode, err)
	}
	return nil
}

// storeOf returns the audited store of the sending connection.
func (h *Hub) storeOf(e dispatcher.Event) storage.Store {
	if c := clientFrom(e.Ctx()); c != nil {
		return c.store
	}
	return h.storeFor(e.User)
}

// finish records metrics and builds the ack. The error is returned as well
// so the dispatcher counts the failure.
func (h *Hub) finish(msgType, reqID, id string, err error, start time.Time) (any, error) {
	code := errorCode(err)
	result := metrics.ResultOK
	switch code {
	case "":
	case streaming.CodeNotFound:
		result = metrics.ResultNotFound
	case streaming.CodeInvalid, streaming.CodeEmptyPatch:
		result = metrics.ResultInvalid
	default:
		result = metrics.ResultError
	}
	h.metrics.WritesTotal.WithLabelValues(msgType, result).Inc()
	h.metrics.WriteDurationMs.WithLabelValues(msgType).Observe(float64(time.Since(start).Microseconds()) / 1000)

	ack := streaming.AckMessage{Type: streaming.TypeAck, For: msgType, RequestID: reqID, ID: id}
	if err != nil {
		ack.Code = code
		ack.Error = err.Error()
	}
	return ack, err
}

// errorCode maps store errors onto protocol codes.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, storage.ErrNotFound):
		return streaming.CodeNotFound
	case errors.Is(err, core.ErrEmptyPatch):
		return streaming.CodeEmptyPatch
	case errors.Is(err, geo.ErrInvalidCoordinates):
		return streaming.CodeInvalid
	case errors.Is(err, storage.ErrClosed):
		return streaming.CodeClosed
	case errors.Is(err, errDecode):
		return streaming.CodeInvalid
	}
	return streaming.CodeInternal
}
