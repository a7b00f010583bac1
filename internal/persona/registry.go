package persona

import "errors"

var ErrUnknownPersona = errors.New("persona: unknown persona id")

// Registry is an immutable lookup table built once at startup. Reads require
// no synchronization.
type Registry struct {
	byID  map[string]Config
	order []string
}

func NewRegistry(items []Config) *Registry {
	r := &Registry{byID: make(map[string]Config, len(items))}
	for _, it := range items {
		if _, dup := r.byID[it.ID]; dup {
			continue
		}
		r.byID[it.ID] = it
		r.order = append(r.order, it.ID)
	}
	return r
}

func (r *Registry) Resolve(id string) (Config, error) {
	cfg, ok := r.byID[id]
	if !ok {
		return Config{}, ErrUnknownPersona
	}
	return cfg, nil
}

// List returns personas in seed order.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
