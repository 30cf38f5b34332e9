package modules

import (
	"github.com/sjenkins/tahoma-mqtt/pkg/config"
	"github.com/sjenkins/tahoma-mqtt/pkg/mqtt"
	"github.com/sjenkins/tahoma-mqtt/pkg/tahoma"
)

// Interface for the different modules being run by the controller.
type Module interface {
	Start() error
	Stop() error
}

// UnitObserver is implemented by modules interested in unit lifecycle
// notifications. The controller fans the registry callbacks out to every
// module implementing it.
type UnitObserver interface {
	OnUnitAdded(unit tahoma.RemoteUnit)
	OnUnitRemoved(unit tahoma.RemoteUnit)
	OnUnitStateChanged(unit tahoma.RemoteUnit, changed []tahoma.Channel)
}

type ModuleBuilder func(mqtt.Client, *tahoma.Bridge, *config.Config) Module

// Register stores a builder function into the registy for external access.
// Register() can be called from init() on a module in this package and will
// automatically register a module.
func Register(name string, builder ModuleBuilder) {
	Modules[name] = builder
}

var Modules = map[string]ModuleBuilder{}
