package apps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// Run starts a new app from a command line.
func (l *List) Run(ctx context.Context, commandLine, name string, terminal bool, level Level) error {
	if _, err := ParseLevel(string(level)); err != nil {
		return err
	}

	return l.call(ctx, "RunCustom2", nil, terminal, commandLine, name, string(level))
}

// Start starts a stopped app.
func (l *List) Start(ctx context.Context, id uint64) error {
	return l.call(ctx, "StartApp", nil, id)
}

// Stop asks a running app to stop.
func (l *List) Stop(ctx context.Context, id uint64) error {
	return l.call(ctx, "StopApp", nil, id)
}

// Kill kills a running app.
func (l *List) Kill(ctx context.Context, id uint64) error {
	return l.call(ctx, "KillApp", nil, id)
}

// Remove removes an app from the supervisor.
func (l *List) Remove(ctx context.Context, id uint64) error {
	return l.call(ctx, "RemoveApp", nil, id)
}

// Properties fetches the editable settings of an app.
func (l *List) Properties(ctx context.Context, id uint64) (Properties, error) {
	var reply struct {
		_           struct{} `cbor:",toarray"`
		Name        string
		CommandLine string
		Running     bool
		Terminal    bool
		Level       string
	}

	if err := l.call(ctx, "GetAppProperties2", &reply, id); err != nil {
		return Properties{}, err
	}

	level, err := ParseLevel(reply.Level)
	if err != nil {
		return Properties{}, err
	}

	return Properties{
		Name:        reply.Name,
		CommandLine: reply.CommandLine,
		Running:     reply.Running,
		Terminal:    reply.Terminal,
		Level:       level,
	}, nil
}

// SetProperties changes the settings of an app.
func (l *List) SetProperties(ctx context.Context, id uint64, p Properties) error {
	if _, err := ParseLevel(string(p.Level)); err != nil {
		return err
	}

	return l.call(ctx, "SetAppProperties2", nil, id, p.Name, p.CommandLine, p.Terminal, string(p.Level))
}

func (l *List) call(ctx context.Context, member string, reply any, args ...any) error {
	if err := l.caller.Call(ctx, l.obj.Method(bus.IfaceAppSupervisor, member), reply, args...); err != nil {
		l.logger.Error("app supervisor call failed",
			slog.String("method", member),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("apps: %s: %w", member, err)
	}

	return nil
}
