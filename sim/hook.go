package sim

// HookPos identifies the place a hook fires from.
type HookPos struct {
	Name string
}

// HookPosEventFired fires after an event handler returns.
var HookPosEventFired = &HookPos{Name: "EventFired"}

// HookCtx carries the information about the site that triggered a hook.
type HookCtx struct {
	// Domain is the hookable object raising the hook.
	Domain Hookable

	// Now is the simulation time at which the hook fires.
	Now Tick

	// Pos identifies the lifecycle stage the hook fires from.
	Pos *HookPos

	// Item is the primary subject of the hook (event, task, cpu).
	Item any

	// Detail holds optional auxiliary data.
	Detail any
}

// Hookable is an object that accepts hooks.
//
// Hooks are registered while building the system, before the simulation
// starts. They are invoked in registration order and never removed.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
	InvokeHook(ctx HookCtx)
}

// Hook is a callback invoked by a Hookable.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase implements Hookable and is meant to be embedded.
type HookableBase struct {
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, other := range h.hookList {
		if _, isFunc := hook.(HookFunc); isFunc {
			break
		}
		if other == hook {
			panic("duplicated hook")
		}
	}
	h.hookList = append(h.hookList, hook)
}

// InvokeHook triggers the registered hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
