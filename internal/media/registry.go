package media

import (
	"log/slog"
	"os"
	"sync"
)

// Compile-time check that Registry implements ProcessRegistrar.
var _ ProcessRegistrar = (*Registry)(nil)

// Registry is a ProcessRegistrar for hosts that have no process tracker
// of their own. It remembers live subprocesses so they can all be killed
// on shutdown, preventing orphaned media tool processes.
type Registry struct {
	mu     sync.Mutex
	procs  map[int]*os.Process
	logger *slog.Logger
}

// NewRegistry creates an empty subprocess registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		procs:  make(map[int]*os.Process),
		logger: logger,
	}
}

// Register tracks a started subprocess.
func (r *Registry) Register(p *os.Process) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[p.Pid] = p
}

// Unregister forgets an exited subprocess.
func (r *Registry) Unregister(p *os.Process) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, p.Pid)
}

// KillAll forcibly terminates every tracked subprocess. Called on
// application shutdown.
func (r *Registry) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pid, p := range r.procs {
		if err := p.Kill(); err != nil {
			r.logger.Warn("failed to kill subprocess",
				slog.Int("pid", pid),
				slog.String("error", err.Error()),
			)
		}
		delete(r.procs, pid)
	}
}

// Len returns the number of tracked subprocesses.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}
