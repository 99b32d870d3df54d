package dispatch

import (
	"context"
	"encoding/json"
	"sort"
)

// Function is one callable operation of a module.
type Function struct {
	Name     string
	Desc     string
	Params   []Param
	Mutating bool
	Run      func(ctx context.Context, args Args) (any, error)
}

// Module is a named group of functions hosted in this process.
type Module interface {
	Name() string
	Functions() []Function
	// Check prepares the module (schema, self-heal). A module whose Check
	// fails is not registered.
	Check(ctx context.Context) error
}

// Resource states reported by Stateful modules.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Resource is a long-running entity owned by a Stateful module.
type Resource struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Stateful modules own resources that survive between calls. The reconciler
// snapshots them and drives them back through the named lifecycle functions,
// each of which takes a single "id" parameter.
type Stateful interface {
	Resources(ctx context.Context) ([]Resource, error)
	Lifecycle() (start, stop string)
}

// FunctionInfo describes a function without its implementation.
type FunctionInfo struct {
	Desc     string
	Params   []Param
	Mutating bool
}

// Catalog is the wire description of every reachable module:
// module -> function -> parameter -> type name, or choice list for
// enumerations. "_desc", "_mutating" and "_optional" are metadata keys.
type Catalog map[string]map[string]map[string]any

const (
	catalogDesc     = "_desc"
	catalogMutating = "_mutating"
	catalogOptional = "_optional"
)

func (fi FunctionInfo) entry() map[string]any {
	e := make(map[string]any, len(fi.Params)+2)
	var optional []string
	for _, p := range fi.Params {
		if len(p.Choices) > 0 {
			e[p.Name] = p.Choices
		} else {
			e[p.Name] = string(p.Type)
		}
		if p.Optional {
			optional = append(optional, p.Name)
		}
	}
	e[catalogDesc] = fi.Desc
	e[catalogMutating] = fi.Mutating
	if len(optional) > 0 {
		e[catalogOptional] = optional
	}
	return e
}

// parseEntry rebuilds a FunctionInfo from a decoded catalog entry.
// Parameters come back sorted by name.
func parseEntry(e map[string]any) FunctionInfo {
	var fi FunctionInfo
	optional := map[string]bool{}
	if raw, ok := e[catalogOptional].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				optional[s] = true
			}
		}
	}
	for k, v := range e {
		switch k {
		case catalogDesc:
			fi.Desc, _ = v.(string)
		case catalogMutating:
			fi.Mutating, _ = v.(bool)
		case catalogOptional:
		default:
			p := Param{Name: k, Optional: optional[k]}
			switch t := v.(type) {
			case string:
				p.Type = ParamType(t)
			case []any:
				for _, c := range t {
					if s, ok := c.(string); ok {
						p.Choices = append(p.Choices, s)
					}
				}
			}
			fi.Params = append(fi.Params, p)
		}
	}
	sort.Slice(fi.Params, func(i, j int) bool { return fi.Params[i].Name < fi.Params[j].Name })
	return fi
}

// Decode converts a call result into out. Local results are Go values and
// remote results are generic JSON; both go through a JSON round trip.
func Decode(result any, out any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
