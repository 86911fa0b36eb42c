package server

import (
	"github.com/google/uuid"

	"mistvale/server/internal/behavior"
	"mistvale/server/internal/script"
	"mistvale/server/internal/state"
	"mistvale/server/logging"
)

// nodeSlotKey keys the compiled-expression cache. Compilation is global;
// evaluation runs against whichever instance scope the caller supplies, so
// one compiled script branches per actor.
type nodeSlotKey struct {
	Kind  behavior.Kind
	Graph behavior.GraphID
	Node  behavior.NodeID
	Slot  string
}

// ScriptError records a failed dynamic script for surfacing to the author.
// Script failures never abort the tick.
type ScriptError struct {
	Graph   behavior.GraphID
	Node    behavior.NodeID
	Slot    string
	Message string
}

// ScriptErrors returns the script errors recorded this tick.
func (w *World) ScriptErrors() []ScriptError { return w.scriptErrors }

// program returns the cached compiled form for a node slot, compiling the
// slot's script text on first use. Recompiling per tick would dominate the
// frame budget with many instances; the cache amortizes the parse while
// evaluation stays per scope.
func (w *World) program(id nodeIdentity, slot string) (*script.Program, bool) {
	key := nodeSlotKey{Kind: id.Kind, Graph: id.Graph, Node: id.Node, Slot: slot}
	if p, ok := w.programs[key]; ok {
		return p, true
	}
	v, ok := w.nodeValue(id, slot)
	if !ok {
		return nil, false
	}
	src, ok := v.AsText()
	if !ok || src == "" {
		return nil, false
	}
	p, err := w.engine.Compile(src)
	if err != nil {
		w.recordScriptError(id, slot, err.Error())
		return nil, false
	}
	w.programs[key] = p
	return p, true
}

// evalBool evaluates a boolean node slot in the instance's scope. Failure or
// a non-boolean result reports ok=false; callers treat it as condition-false.
func (w *World) evalBool(idx state.InstanceIndex, id nodeIdentity, slot string) (bool, bool) {
	scope := w.Scope(idx)
	if scope == nil {
		return false, false
	}
	p, ok := w.program(id, slot)
	if !ok {
		return false, false
	}
	w.pushStandardBindings(idx)
	return w.engine.EvalBool(p, scope)
}

// evalNumber evaluates a numeric node slot, normalizing integer and floating
// script results to float64.
func (w *World) evalNumber(idx state.InstanceIndex, id nodeIdentity, slot string) (float64, bool) {
	scope := w.Scope(idx)
	if scope == nil {
		return 0, false
	}
	p, ok := w.program(id, slot)
	if !ok {
		return 0, false
	}
	w.pushStandardBindings(idx)
	return w.engine.EvalNumber(p, scope)
}

// evalDynamic runs a side-effecting node slot script. Errors land in the
// script-error log and the tick continues.
func (w *World) evalDynamic(idx state.InstanceIndex, id nodeIdentity, slot string) bool {
	scope := w.Scope(idx)
	if scope == nil {
		return false
	}
	p, ok := w.program(id, slot)
	if !ok {
		return false
	}
	w.pushStandardBindings(idx)
	before := numberSnapshot(scope)
	_, err := w.engine.Eval(p, scope)
	if err != nil {
		w.recordScriptError(id, slot, err.Error())
		return false
	}
	w.traceChangedNumbers(idx, scope, before)
	return true
}

// evalForPlayerScope runs a game-logic script against the named player's own
// scope instead of an instance scope, so quest and progression variables live
// apart from the instance's behavior variables.
func (w *World) evalForPlayerScope(id nodeIdentity, slot string, playerID uuid.UUID) bool {
	scope, ok := w.playerScopes[playerID]
	if !ok {
		return false
	}
	p, ok := w.program(id, slot)
	if !ok {
		return false
	}
	_, err := w.engine.Eval(p, scope)
	if err != nil {
		w.recordScriptError(id, slot, err.Error())
		return false
	}
	return true
}

// PlayerScope returns (creating on demand) the game-logic scope for a player.
func (w *World) PlayerScope(playerID uuid.UUID) *script.Scope {
	scope, ok := w.playerScopes[playerID]
	if !ok {
		scope = script.NewScope()
		w.playerScopes[playerID] = scope
	}
	return scope
}

// pushStandardBindings refreshes the transient Self/Target bindings before an
// evaluation. Last-write-wins per name, so re-pushing every call is cheap
// and leaves no garbage.
func (w *World) pushStandardBindings(idx state.InstanceIndex) {
	inst := w.Instance(idx)
	scope := w.Scope(idx)
	if inst == nil || scope == nil {
		return
	}
	scope.Set("Self", inst.Name)
	if target := w.Instance(inst.TargetIndex); target != nil {
		scope.Set("Target", target.Name)
	}
}

func (w *World) recordScriptError(id nodeIdentity, slot, message string) {
	w.scriptErrors = append(w.scriptErrors, ScriptError{
		Graph:   id.Graph,
		Node:    id.Node,
		Slot:    slot,
		Message: message,
	})
	w.publish(logging.Event{
		Type:     logging.EventScriptError,
		Actor:    logging.EntityRef{ID: id.Graph.String(), Kind: logging.EntityKindWorld},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryScript,
		Payload:  slot + ": " + message,
	})
}

func numberSnapshot(scope *script.Scope) map[string]float64 {
	snap := make(map[string]float64)
	for _, name := range scope.Names() {
		if n, ok := scope.Number(name); ok {
			snap[name] = n
		}
	}
	return snap
}

// traceChangedNumbers appends changed-variable entries for the editor's
// variable watch, comparing numeric bindings against a pre-eval snapshot.
func (w *World) traceChangedNumbers(idx state.InstanceIndex, scope *script.Scope, before map[string]float64) {
	for _, name := range scope.Names() {
		after, ok := scope.Number(name)
		if !ok {
			continue
		}
		if prev, had := before[name]; !had || prev != after {
			w.changedVariables = append(w.changedVariables, ChangedVariable{
				Instance: idx,
				Name:     name,
				Value:    after,
			})
		}
	}
}
