package launcher

import (
	"fmt"
	"log/slog"

	"github.com/me/amaos/pkg/model"
)

// Registry maps task kinds to their Launcher.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	launchers map[model.Kind]Launcher
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		launchers: make(map[model.Kind]Launcher),
		logger:    logger.With("component", "launcher-registry"),
	}
}

// Register adds a Launcher, replacing any previous one for the same kind.
func (r *Registry) Register(l Launcher) {
	k := l.Kind()
	r.launchers[k] = l
	r.logger.Info("launcher registered", "kind", k, "impl", fmt.Sprintf("%T", l))
}

// Live reports Counter.Live for every registered launcher that implements it.
func (r *Registry) Live() map[model.Kind]int {
	out := make(map[model.Kind]int, len(r.launchers))
	for k, l := range r.launchers {
		if c, ok := l.(Counter); ok {
			out[k] = c.Live()
		}
	}
	return out
}

// Get returns the Launcher for kind or an error if none is registered.
func (r *Registry) Get(k model.Kind) (Launcher, error) {
	l, ok := r.launchers[k]
	if !ok {
		return nil, fmt.Errorf("no launcher registered for kind %q", k)
	}
	return l, nil
}
