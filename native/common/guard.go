package common

import "errors"

// ErrModulePaused is returned when a state-changing call reaches a module
// that governance has paused.
var ErrModulePaused = errors.New("common: module paused")

// PauseView exposes the pause switches maintained outside the native modules.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or an
// empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
