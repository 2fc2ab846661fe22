// Package router dispatches slash command interactions to handlers on a
// bounded worker pool.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"raidwatch/internal/runtime/supervisor"
	kit "raidwatch/internal/transport"
	logx "raidwatch/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

// CompleteFunc returns autocomplete choices for the focused option.
type CompleteFunc func(ctx context.Context, req *Request, focused kit.Option) []kit.Choice

type Command struct {
	// Route is the command path, e.g. "ping" or "managelogs add".
	Route       string
	Description string
	Group       string // description of the parent command for subcommands
	Options     []kit.CommandOption
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
	Complete    CompleteFunc
}

type Request struct {
	Interaction *kit.Interaction
	Route       string
	ReqID       string
	Logger      logx.Logger

	adapter kit.Adapter
	replied atomic.Bool
}

func (r *Request) Arg(name string) string { return strings.TrimSpace(r.Interaction.Option(name)) }

// Reply answers the interaction. Only the first reply is delivered.
func (r *Request) Reply(ctx context.Context, msg kit.Message) error {
	if !r.replied.CompareAndSwap(false, true) {
		return errors.New("interaction already answered")
	}
	return r.adapter.Respond(ctx, r.Interaction, msg)
}

func (r *Request) ReplyText(ctx context.Context, text string) error {
	return r.Reply(ctx, kit.Message{Content: text, Ephemeral: true})
}

// UserError is shown to the invoking user verbatim.
type UserError struct{ Msg string }

func (e *UserError) Error() string { return e.Msg }

func Userf(format string, args ...any) error { return &UserError{Msg: fmt.Sprintf(format, args...)} }

type Router struct {
	mu     sync.RWMutex
	routes map[string]Command
	owners map[string]bool

	log     logx.Logger
	adapter kit.Adapter
	workers int
	jobs    chan func()

	// Explain turns a handler error into the text shown to the user.
	Explain func(err error) string
}

func New(log logx.Logger, adapter kit.Adapter, workers int) *Router {
	if workers <= 0 {
		workers = 4
	}
	return &Router{
		routes:  map[string]Command{},
		owners:  map[string]bool{},
		log:     log,
		adapter: adapter,
		workers: workers,
		jobs:    make(chan func(), 128),
		Explain: defaultExplain,
	}
}

func defaultExplain(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Msg
	}
	return "Something went wrong: " + err.Error()
}

// SetCommands replaces the command table.
func (r *Router) SetCommands(cmds []Command) {
	routes := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		routes[normRoute(c.Route)] = c
	}
	r.mu.Lock()
	r.routes = routes
	r.mu.Unlock()
}

// SetOwners updates who may run owner-only commands. Safe during reload.
func (r *Router) SetOwners(ids []string) {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[strings.TrimSpace(id)] = true
	}
	r.mu.Lock()
	r.owners = m
	r.mu.Unlock()
}

func (r *Router) isOwner(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[id]
}

func normRoute(route string) string { return strings.Join(strings.Fields(strings.ToLower(route)), " ") }

// Specs groups the command table into top-level slash commands.
func (r *Router) Specs() []kit.CommandSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := map[string]*kit.CommandSpec{}
	for route, c := range r.routes {
		parts := strings.SplitN(route, " ", 2)
		spec := byName[parts[0]]
		if spec == nil {
			spec = &kit.CommandSpec{Name: parts[0]}
			byName[parts[0]] = spec
		}
		if len(parts) == 1 {
			spec.Description, spec.Options = c.Description, c.Options
			continue
		}
		if c.Group != "" {
			spec.Description = c.Group
		}
		spec.Subcommands = append(spec.Subcommands, kit.SubcommandSpec{Name: parts[1], Description: c.Description, Options: c.Options})
	}

	out := make([]kit.CommandSpec, 0, len(byName))
	for _, s := range byName {
		sort.Slice(s.Subcommands, func(i, j int) bool { return s.Subcommands[i].Name < s.Subcommands[j].Name })
		if s.Description == "" {
			s.Description = s.Name
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DispatchLoop consumes updates until ctx is done or updates closes.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for i := 0; i < r.workers; i++ {
		sup.GoRestart(fmt.Sprintf("command.worker.%d", i), 200*time.Millisecond, 5*time.Second, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job()
				}
			}
		})
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers))
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// Route handles one update on the worker pool.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	in := up.Interaction
	if in == nil {
		return
	}
	route := normRoute(strings.Join(in.Path, " "))
	r.mu.RLock()
	cmd, ok := r.routes[route]
	r.mu.RUnlock()

	req := &Request{
		Interaction: in,
		Route:       route,
		ReqID:       uuid.NewString(),
		adapter:     r.adapter,
	}
	req.Logger = r.log.With(logx.String("rid", req.ReqID), logx.String("cmd", route), logx.String("user_id", in.UserID))

	if up.Kind == kit.UpdateAutocomplete {
		if !ok || cmd.Complete == nil {
			return
		}
		focused, _ := in.Focused()
		r.enqueue(ctx, req, func(ctx context.Context) {
			choices := cmd.Complete(ctx, req, focused)
			if len(choices) > 25 {
				choices = choices[:25]
			}
			if err := r.adapter.Suggest(ctx, in, choices); err != nil {
				req.Logger.Debug("autocomplete reply failed", logx.Err(err))
			}
		})
		return
	}

	if !ok {
		_ = req.ReplyText(ctx, "Unknown command.")
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(in.UserID) {
		_ = req.ReplyText(ctx, "You are not allowed to use this command.")
		return
	}

	h := Chain(cmd.Handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(cmd.Timeout))
	r.enqueue(ctx, req, func(ctx context.Context) {
		err := h(ctx, req)
		if err != nil && !req.replied.Load() {
			_ = req.ReplyText(ctx, r.Explain(err))
		}
	})
}

func (r *Router) enqueue(ctx context.Context, req *Request, fn func(ctx context.Context)) {
	select {
	case r.jobs <- func() { fn(ctx) }:
	default:
		req.Logger.Warn("command queue full")
		_ = req.ReplyText(ctx, "Busy, try again in a moment.")
	}
}
