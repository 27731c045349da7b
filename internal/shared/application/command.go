package application

import "context"

// Command is a write against the backing store. The cache picks the change
// up from the store's commit notifications, never from the command itself.
type Command interface {
	CommandName() string
}

// CommandHandler executes one command type.
type CommandHandler[C Command] interface {
	Handle(ctx context.Context, cmd C) error
}
