package actionstate

import (
	"reflect"
	"sync"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/types"
)

// Flags is the fixed record of in-flight operation markers for one
// resource. A set flag means an operation of that family is running.
type Flags struct {
	Deploying  bool `json:"deploying,omitempty"`
	Pulling    bool `json:"pulling,omitempty"`
	Starting   bool `json:"starting,omitempty"`
	Restarting bool `json:"restarting,omitempty"`
	Pausing    bool `json:"pausing,omitempty"`
	Unpausing  bool `json:"unpausing,omitempty"`
	Stopping   bool `json:"stopping,omitempty"`
	Destroying bool `json:"destroying,omitempty"`
	Building   bool `json:"building,omitempty"`
	Cloning    bool `json:"cloning,omitempty"`
	Cancelling bool `json:"cancelling,omitempty"`
	Renaming   bool `json:"renaming,omitempty"`
	Updating   bool `json:"updating,omitempty"`
	Deleting   bool `json:"deleting,omitempty"`
	Syncing    bool `json:"syncing,omitempty"`
	Running    bool `json:"running,omitempty"`
}

// trueFields returns the indices of every set flag.
func (f *Flags) trueFields() []int {
	v := reflect.ValueOf(f).Elem()
	var out []int
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).Bool() {
			out = append(out, i)
		}
	}
	return out
}

func (f *Flags) fieldName(i int) string {
	return reflect.TypeOf(*f).Field(i).Name
}

func (f *Flags) setField(i int, val bool) {
	reflect.ValueOf(f).Elem().Field(i).SetBool(val)
}

func (f *Flags) getField(i int) bool {
	return reflect.ValueOf(f).Elem().Field(i).Bool()
}

type key struct {
	kind types.ResourceKind
	id   string
}

// Registry is the process-wide action-state table. One short-lived mutex
// guards the read-modify-write of flags; it is never held across I/O.
type Registry struct {
	mu    sync.Mutex
	state map[key]*Flags
}

// NewRegistry returns an empty registry. Construct once at startup.
func NewRegistry() *Registry {
	return &Registry{state: make(map[key]*Flags)}
}

// Guard releases its flags exactly once, on any path out of the
// operation that acquired it.
type Guard struct {
	reg     *Registry
	key     key
	touched []int
	once    sync.Once
}

// Acquire atomically checks and sets the flags the setter touches.
// It fails fast with a ResourceBusy error when any touched flag is
// already set; nothing is mutated in that case. Guards do not stack:
// compound operations take the guard once at the outermost layer and
// route inner work through paths that skip acquisition.
func (r *Registry) Acquire(kind types.ResourceKind, id string, set func(*Flags)) (*Guard, error) {
	var probe Flags
	set(&probe)
	touched := probe.trueFields()

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{kind: kind, id: id}
	cur, ok := r.state[k]
	if !ok {
		cur = &Flags{}
		r.state[k] = cur
	}
	for _, i := range touched {
		if cur.getField(i) {
			return nil, errs.Busy(probe.fieldName(i), string(kind), id)
		}
	}
	for _, i := range touched {
		cur.setField(i, true)
	}
	return &Guard{reg: r, key: k, touched: touched}, nil
}

// Release restores the guard's flags to false. Safe to call multiple
// times; only the first call mutates state.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.reg.mu.Lock()
		defer g.reg.mu.Unlock()
		if cur, ok := g.reg.state[g.key]; ok {
			for _, i := range g.touched {
				cur.setField(i, false)
			}
		}
	})
}

// Get returns a copy of the current flags for the resource.
func (r *Registry) Get(kind types.ResourceKind, id string) Flags {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.state[key{kind: kind, id: id}]; ok {
		return *cur
	}
	return Flags{}
}

// Busy reports whether any flag is set for the resource.
func (r *Registry) Busy(kind types.ResourceKind, id string) bool {
	flags := r.Get(kind, id)
	return len(flags.trueFields()) > 0
}

// Clear drops the record for a deleted resource.
func (r *Registry) Clear(kind types.ResourceKind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, key{kind: kind, id: id})
}
