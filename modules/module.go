package modules

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/aukilabs/spatialtree/models"
)

// Module is the interface that describes a module that works on the spatial
// data of a session.
type Module interface {
	// Returns the module name.
	Name() string

	// Binds the module to the session joined by the given participant.
	Init(*models.Session, *models.Participant)

	// Handles a given message. Modules are free to decide whether they handle a
	// message.
	//
	// Returning ErrModuleMsgSkip indicates that handling a message was skipped.
	//
	// Any other returned errors causes the current WebSocket client to be
	// disconnected.
	HandleMsg(context.Context, hwebsocket.ResponseSender, hwebsocket.Msg) error

	// Handles a client disconnection.
	HandleDisconnect()
}

// Names returns the names of the given modules.
func Names(mods ...Module) []string {
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name()
	}
	return names
}

// ErrSessionNotJoined returns the error reported when msg is handled before
// its sender joined a session.
func ErrSessionNotJoined(msg hwebsocket.Msg) error {
	return errors.New("session not joined").
		WithType(hwebsocket.ErrTypeSessionNotJoined).
		WithTag("msg_type", msg.Type)
}
