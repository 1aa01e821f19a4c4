// Package bridge carries messages between isolated contexts (page detectors,
// the coordinator, panels). Every request and reply is serialized on the way
// through, so the two sides never share memory.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/message"
)

// ErrNoReceiver is returned when nothing is registered at the target.
var ErrNoReceiver = errors.New("could not establish connection: receiving end does not exist")

// Target addresses a context on the bridge.
type Target string

// Coordinator is the address of the long-lived coordinator.
const Coordinator Target = "coordinator"

// Tab returns the address of the detector running in a tab.
func Tab(tabID int) Target {
	return Target("tab:" + strconv.Itoa(tabID))
}

// Sender describes where a request came from. TabID is 0 for non-page contexts.
type Sender struct {
	TabID int
}

// Handler receives requests addressed to one context.
type Handler interface {
	Handle(ctx context.Context, from Sender, req message.Request) (message.Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, from Sender, req message.Request) (message.Response, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, from Sender, req message.Request) (message.Response, error) {
	return f(ctx, from, req)
}

// RemoteError is a rejection raised on the receiving side.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Messenger sends requests to other contexts.
type Messenger interface {
	Send(ctx context.Context, to Target, req message.Request) (message.Response, error)
}

// Bridge routes requests to registered handlers.
type Bridge struct {
	handlers map[Target]Handler
	mu       sync.RWMutex
	logger   zerolog.Logger
}

// New creates an empty bridge.
func New(logger zerolog.Logger) *Bridge {
	return &Bridge{
		handlers: make(map[Target]Handler),
		logger:   logger.With().Str("component", "bridge").Logger(),
	}
}

// Register installs h at target, replacing any previous handler.
func (b *Bridge) Register(target Target, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[target] = h
}

// Unregister removes the handler at target.
func (b *Bridge) Unregister(target Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, target)
}

// Endpoint returns a Messenger that sends on behalf of from.
func (b *Bridge) Endpoint(from Sender) *Endpoint {
	return &Endpoint{bridge: b, from: from}
}

type reply struct {
	data []byte
	err  error
}

// Send delivers req to target and waits for the reply or ctx cancellation.
// The receiving handler runs detached from ctx: once issued, the request
// completes on the other side even if the caller stops waiting.
func (b *Bridge) Send(ctx context.Context, from Sender, to Target, req message.Request) (message.Response, error) {
	b.mu.RLock()
	h, ok := b.handlers[to]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s to %s: %w", req.Action(), to, ErrNoReceiver)
	}

	payload, err := message.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	b.logger.Trace().
		Str("requestId", requestID).
		Str("action", string(req.Action())).
		Str("to", string(to)).
		Int("fromTab", from.TabID).
		Msg("Sending message")

	done := make(chan reply, 1)
	go func() {
		done <- b.deliver(context.WithoutCancel(ctx), h, from, payload)
	}()

	select {
	case <-ctx.Done():
		b.logger.Trace().Str("requestId", requestID).Msg("Caller stopped waiting, reply will be dropped")
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		resp, err := message.DecodeResponse(req.Action(), r.data)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

func (b *Bridge) deliver(ctx context.Context, h Handler, from Sender, payload []byte) reply {
	req, err := message.DecodeRequest(payload)
	if err != nil {
		return reply{err: &RemoteError{Message: err.Error()}}
	}

	resp, err := h.Handle(ctx, from, req)
	if err != nil {
		return reply{err: &RemoteError{Message: err.Error()}}
	}
	if resp == nil || !message.ResponseMatches(req.Action(), resp) {
		return reply{err: &RemoteError{Message: fmt.Sprintf("%s: %v", req.Action(), message.ErrUnexpectedResponse)}}
	}

	data, err := message.EncodeResponse(resp)
	if err != nil {
		return reply{err: &RemoteError{Message: err.Error()}}
	}
	return reply{data: data}
}

// Endpoint is a Messenger bound to one sender.
type Endpoint struct {
	bridge *Bridge
	from   Sender
}

// Send delivers req to target as the endpoint's sender.
func (e *Endpoint) Send(ctx context.Context, to Target, req message.Request) (message.Response, error) {
	return e.bridge.Send(ctx, e.from, to, req)
}
