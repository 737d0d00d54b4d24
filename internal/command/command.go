// Package command turns the arguments of a /transfer invocation into a
// negotiation operation.
package command

import (
	"context"
	"errors"
	"sort"
	"strings"

	"shopkeep.ai/internal/protocol"
	"shopkeep.ai/internal/transfer/model"
	"shopkeep.ai/internal/transfer/negotiation"
)

const KeyWrongArgs = "command.wrong-args"

var ErrWrongArgs = errors.New("wrong arguments")

var (
	acceptWords = map[string]bool{"accept": true, "allow": true, "yes": true}
	rejectWords = map[string]bool{"reject": true, "deny": true, "no": true}
)

type Service interface {
	Propose(ctx context.Context, initiator model.Actor, recipientName string) (model.Request, error)
	Respond(ctx context.Context, responder model.Actor, d negotiation.Decision) (model.Outcome, error)
	OverrideTransfer(ctx context.Context, actor model.Actor, fromName, toName string) (negotiation.OverrideResult, error)
}

// Roster lists the display names of players currently online.
type Roster interface {
	Online() []string
}

type Dispatcher struct {
	svc    Service
	notify negotiation.Notifier
	roster Roster
}

func NewDispatcher(svc Service, notify negotiation.Notifier, roster Roster) *Dispatcher {
	return &Dispatcher{svc: svc, notify: notify, roster: roster}
}

// Execute runs one command for sender. The service has already told the
// players involved about the outcome; the error is for the caller's result
// code only.
func (d *Dispatcher) Execute(ctx context.Context, sender model.Actor, args []string) error {
	args = clean(args)
	switch len(args) {
	case 1:
		word := strings.ToLower(args[0])
		switch {
		case acceptWords[word]:
			_, err := d.svc.Respond(ctx, sender, negotiation.Accept)
			return err
		case rejectWords[word]:
			_, err := d.svc.Respond(ctx, sender, negotiation.Reject)
			return err
		default:
			_, err := d.svc.Propose(ctx, sender, args[0])
			return err
		}
	case 2:
		_, err := d.svc.OverrideTransfer(ctx, sender, args[0], args[1])
		return err
	default:
		if d.notify != nil {
			_ = d.notify.Send(ctx, sender, KeyWrongArgs)
		}
		return ErrWrongArgs
	}
}

// Complete returns suggestions for the argument being typed: online player
// names plus the response keywords, for at most two arguments.
func (d *Dispatcher) Complete(args []string) []string {
	if len(args) > 2 {
		return []string{}
	}
	var out []string
	if d.roster != nil {
		out = append(out, d.roster.Online()...)
	}
	sort.Strings(out)
	out = append(out, "accept", "deny")

	prefix := ""
	if len(args) > 0 {
		prefix = strings.ToLower(args[len(args)-1])
	}
	if prefix == "" {
		return out
	}
	filtered := out[:0]
	for _, o := range out {
		if strings.HasPrefix(strings.ToLower(o), prefix) {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// Code is negotiation.Code extended with the command layer's own errors.
func Code(err error) string {
	if errors.Is(err, ErrWrongArgs) {
		return protocol.ErrBadRequest
	}
	return negotiation.Code(err)
}

func clean(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
