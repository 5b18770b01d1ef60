package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// Well-known daemon objects.
var (
	ControlObject = bus.Object{Service: bus.ServiceLadish, Path: bus.ObjectControl}
	StudioObject  = bus.Object{Service: bus.ServiceLadish, Path: bus.ObjectStudio}
)

// Studio is one saved studio.
type Studio struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

type boolReply struct {
	_     struct{} `cbor:",toarray"`
	Value bool
}

type stringReply struct {
	_     struct{} `cbor:",toarray"`
	Value string
}

type studioListReply struct {
	_       struct{} `cbor:",toarray"`
	Studios []studioEntry
}

type studioEntry struct {
	_          struct{} `cbor:",toarray"`
	Name       string
	Properties map[string]any
}

// Controller wraps the calls of the control and studio objects. It holds no
// state and is safe for concurrent use as long as its Caller is.
type Controller struct {
	caller bus.Caller
	logger *slog.Logger
}

// NewController creates a Controller issuing calls through c.
func NewController(c bus.Caller, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{caller: c, logger: logger}
}

// IsStudioLoaded reports whether the daemon has a studio loaded. Also used
// as the presence probe.
func (c *Controller) IsStudioLoaded(ctx context.Context) (bool, error) {
	var reply boolReply
	if err := c.call(ctx, ControlObject.Method(bus.IfaceControl, "IsStudioLoaded"), &reply); err != nil {
		return false, err
	}

	return reply.Value, nil
}

// Studios lists the saved studios.
func (c *Controller) Studios(ctx context.Context) ([]Studio, error) {
	var reply studioListReply
	if err := c.call(ctx, ControlObject.Method(bus.IfaceControl, "GetStudioList"), &reply); err != nil {
		return nil, err
	}

	out := make([]Studio, 0, len(reply.Studios))
	for _, e := range reply.Studios {
		out = append(out, Studio{Name: e.Name, Properties: e.Properties})
	}

	return out, nil
}

// NewStudio creates and loads an empty studio.
func (c *Controller) NewStudio(ctx context.Context, name string) error {
	return c.call(ctx, ControlObject.Method(bus.IfaceControl, "NewStudio"), nil, name)
}

// LoadStudio loads a saved studio.
func (c *Controller) LoadStudio(ctx context.Context, name string) error {
	return c.call(ctx, ControlObject.Method(bus.IfaceControl, "LoadStudio"), nil, name)
}

// DeleteStudio deletes a saved studio.
func (c *Controller) DeleteStudio(ctx context.Context, name string) error {
	return c.call(ctx, ControlObject.Method(bus.IfaceControl, "DeleteStudio"), nil, name)
}

// Exit asks the daemon to exit. A clean exit is announced with CleanExit
// before the daemon leaves the bus.
func (c *Controller) Exit(ctx context.Context) error {
	return c.call(ctx, ControlObject.Method(bus.IfaceControl, "Exit"), nil)
}

// StudioName returns the name of the loaded studio.
func (c *Controller) StudioName(ctx context.Context) (string, error) {
	var reply stringReply
	if err := c.call(ctx, StudioObject.Method(bus.IfaceStudio, "GetName"), &reply); err != nil {
		return "", err
	}

	return reply.Value, nil
}

// IsStarted reports whether the loaded studio is started.
func (c *Controller) IsStarted(ctx context.Context) (bool, error) {
	var reply boolReply
	if err := c.call(ctx, StudioObject.Method(bus.IfaceStudio, "IsStarted"), &reply); err != nil {
		return false, err
	}

	return reply.Value, nil
}

// RenameStudio renames the loaded studio.
func (c *Controller) RenameStudio(ctx context.Context, name string) error {
	return c.call(ctx, StudioObject.Method(bus.IfaceStudio, "Rename"), nil, name)
}

// SaveStudio saves the loaded studio.
func (c *Controller) SaveStudio(ctx context.Context) error {
	return c.call(ctx, StudioObject.Method(bus.IfaceStudio, "Save"), nil)
}

// UnloadStudio unloads the loaded studio.
func (c *Controller) UnloadStudio(ctx context.Context) error {
	return c.call(ctx, StudioObject.Method(bus.IfaceStudio, "Unload"), nil)
}

// StartStudio starts the loaded studio.
func (c *Controller) StartStudio(ctx context.Context) error {
	return c.call(ctx, StudioObject.Method(bus.IfaceStudio, "Start"), nil)
}

// StopStudio stops the loaded studio.
func (c *Controller) StopStudio(ctx context.Context) error {
	return c.call(ctx, StudioObject.Method(bus.IfaceStudio, "Stop"), nil)
}

func (c *Controller) call(ctx context.Context, m bus.Method, reply any, args ...any) error {
	if err := c.caller.Call(ctx, m, reply, args...); err != nil {
		c.logger.Debug("control call failed",
			slog.String("method", m.String()),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("control: %s: %w", m.Member, err)
	}

	return nil
}
