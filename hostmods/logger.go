// Package hostmods ships natively implemented modules that scripts reach
// through bare specifiers once the modules are registered with a loader.
package hostmods

import (
	"fmt"

	"github.com/apex/log"

	modstring "github.com/mdevils/module-from-string"
)

type loggerModule struct{}

// NewLoggerModule provides the "logger" module with leveled logging
// functions backed by the host logger.
func NewLoggerModule() modstring.HostModule {
	return &loggerModule{}
}

func (*loggerModule) Name() string {
	return "logger"
}

func (*loggerModule) Exports() map[string]interface{} {
	emit := func(write func(string, ...interface{})) func(msg string, args ...interface{}) {
		return func(msg string, args ...interface{}) {
			if len(args) > 0 {
				msg = fmt.Sprintf(msg, args...)
			}
			write("Script: %s", msg)
		}
	}

	return map[string]interface{}{
		"debug": emit(log.Debugf),
		"info":  emit(log.Infof),
		"warn":  emit(log.Warnf),
		"error": emit(log.Errorf),
	}
}
