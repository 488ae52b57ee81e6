package client

import (
	"context"
	"fmt"
	"log"

	"quillpad/sync/internal/event"
)

// Emitter is the outbound half of the realtime channel. Connected reports
// whether a live room connection exists; Emit sends one event into it.
type Emitter interface {
	Connected() bool
	Emit(e event.Event) error
}

// Notifier surfaces a user-visible message when a mutation had to be rolled
// back. Implementations render a toast or equivalent.
type Notifier interface {
	Notify(message string)
}

// Dispatcher runs every mutating operation through the same protocol:
//
//  1. apply the optimistic mutation synchronously
//  2. persist
//  3. on success, broadcast to the room (shared workspace, live channel)
//  4. on failure, apply the precomputed inverse and notify the user
//
// Steps 1 is atomic with respect to other state readers; the persistence call
// is the only suspension point. Failures are consumed here: Dispatch returns
// an error for the caller to inspect, but the state is already consistent
// again and the user already notified. There is no automatic retry.
type Dispatcher struct {
	persister Persister
	emitter   Emitter
	notifier  Notifier
}

func NewDispatcher(persister Persister, emitter Emitter, notifier Notifier) *Dispatcher {
	return &Dispatcher{persister: persister, emitter: emitter, notifier: notifier}
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) error {
	if !cmd.forward() {
		return fmt.Errorf("%s: %w", cmd.name, ErrItemNotFound)
	}

	if err := cmd.persist(ctx, d.persister); err != nil {
		cmd.inverse()
		if d.notifier != nil {
			d.notifier.Notify(cmd.failMessage)
		}
		return fmt.Errorf("%s: %w", cmd.name, err)
	}

	if cmd.event != nil && cmd.sharedRoom && d.emitter != nil && d.emitter.Connected() {
		if err := d.emitter.Emit(*cmd.event); err != nil {
			// The mutation is already persisted; a failed broadcast only means
			// other clients reconcile on their next full fetch.
			log.Printf("client: broadcast of %s failed: %v", cmd.event.Name, err)
		}
	}
	return nil
}
