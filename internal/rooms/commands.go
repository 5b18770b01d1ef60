package rooms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/patchbay-go/internal/bus"
)

// Templates lists the room templates known to the control object.
func Templates(ctx context.Context, c bus.Caller, control bus.Object) ([]string, error) {
	var reply struct {
		_     struct{} `cbor:",toarray"`
		Names []string
	}

	if err := c.Call(ctx, control.Method(bus.IfaceControl, "GetRoomTemplateList"), &reply); err != nil {
		return nil, fmt.Errorf("rooms: GetRoomTemplateList: %w", err)
	}

	return reply.Names, nil
}

// NewRoom creates a room from template. The room shows up through
// RoomAppeared.
func (l *List) NewRoom(ctx context.Context, name, template string) error {
	return l.call(ctx, "NewRoom", name, template)
}

// DeleteRoom deletes the room called name.
func (l *List) DeleteRoom(ctx context.Context, name string) error {
	return l.call(ctx, "DeleteRoom", name)
}

func (l *List) call(ctx context.Context, member string, args ...any) error {
	if err := l.caller.Call(ctx, l.obj.Method(bus.IfaceStudio, member), nil, args...); err != nil {
		l.logger.Error("studio call failed",
			slog.String("method", member),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("rooms: %s: %w", member, err)
	}

	return nil
}
