package cli

import (
	"context"

	internalApp "github.com/felixgeelhaar/schedcache/internal/app"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/pkg/config"
)

// ActivityStore is the write side of the backing store.
type ActivityStore interface {
	Save(ctx context.Context, activity *domain.Activity) error
	Delete(ctx context.Context, ref domain.EventRef) error
	FindByRef(ctx context.Context, ref domain.EventRef) (*domain.Activity, error)
}

// App holds the CLI application dependencies.
type App struct {
	Container *internalApp.Container

	// Command Handlers
	ScheduleActivityHandler   *commands.ScheduleActivityHandler
	RescheduleActivityHandler *commands.RescheduleActivityHandler
	CancelActivityHandler     *commands.CancelActivityHandler
	RenameStatusHandler       *commands.RenameStatusHandler
	RenamePartyHandler        *commands.RenamePartyHandler

	// Query Handlers
	GetEventsHandler     *queries.GetEventsHandler
	FindFreeSlotsHandler *queries.FindFreeSlotsHandler
	CheckOverlapHandler  *queries.CheckOverlapHandler

	// Store
	Activities ActivityStore
}

// NewApp creates a new CLI application from a wired container.
func NewApp(c *internalApp.Container) *App {
	return &App{
		Container:                 c,
		ScheduleActivityHandler:   c.ScheduleActivityHandler,
		RescheduleActivityHandler: c.RescheduleActivityHandler,
		CancelActivityHandler:     c.CancelActivityHandler,
		RenameStatusHandler:       c.RenameStatusHandler,
		RenamePartyHandler:        c.RenamePartyHandler,
		GetEventsHandler:          c.GetEventsHandler,
		FindFreeSlotsHandler:      c.FindFreeSlotsHandler,
		CheckOverlapHandler:       c.CheckOverlapHandler,
		Activities:                c.ActivityRepo,
	}
}

// app is the global CLI application instance
var app *App

// ownedClose closes an application opened by initApp.
var ownedClose func()

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

func initApp(ctx context.Context, cfg *config.Config) error {
	container, err := internalApp.NewContainer(ctx, cfg, Logger())
	if err != nil {
		return err
	}
	app = NewApp(container)
	ownedClose = container.Close
	return nil
}

func closeApp() {
	if ownedClose != nil {
		ownedClose()
		ownedClose = nil
		app = nil
	}
}
