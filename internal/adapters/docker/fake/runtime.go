// Package fake provides an in-memory container runtime for tests
package fake

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// ExecFunc handles an exec call. It must honor ctx.
type ExecFunc func(ctx context.Context, c *Container, spec domain.ExecSpec) (int, error)

// Container is a fake container
type Container struct {
	domain.ContainerInfo
	Spec domain.ContainerSpec
}

// Call represents a recorded method call
type Call struct {
	Method string
	Args   []any
}

// Runtime is an in-memory container runtime. It satisfies
// usecase.ContainerRuntime without importing it so usecase tests can use it.
type Runtime struct {
	mu sync.Mutex

	// Containers tracks containers by id
	Containers map[string]*Container

	// Images maps image references to ids
	Images map[string]string

	// Networks holds the names of existing networks
	Networks map[string]bool

	// Errors allows injecting errors for specific methods
	Errors map[string]error

	// errorsOnce holds errors returned by the next call of a method only
	errorsOnce map[string]error

	// Files maps a container source path to the files CopyFromContainer writes
	Files map[string]map[string]string

	// ExecHandler handles commands; nil means every command succeeds
	ExecHandler ExecFunc

	// BuildDelay slows BuildImage down to widen race windows
	BuildDelay time.Duration

	// CallLog records all method calls for verification
	CallLog []Call

	seq int
}

// NewRuntime creates a new fake runtime
func NewRuntime() *Runtime {
	return &Runtime{
		Containers: make(map[string]*Container),
		Images:     make(map[string]string),
		Networks:   make(map[string]bool),
		Errors:     make(map[string]error),
		errorsOnce: make(map[string]error),
		Files:      make(map[string]map[string]string),
	}
}

func (r *Runtime) record(method string, args ...any) error {
	r.CallLog = append(r.CallLog, Call{Method: method, Args: args})
	if err, ok := r.errorsOnce[method]; ok {
		delete(r.errorsOnce, method)
		return err
	}
	return r.Errors[method]
}

// SetErrorOnce makes the next call of method fail with err
func (r *Runtime) SetErrorOnce(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorsOnce[method] = err
}

// SetError sets an error to be returned for a specific method
func (r *Runtime) SetError(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors[method] = err
}

// SetExec installs an exec handler
func (r *Runtime) SetExec(fn ExecFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ExecHandler = fn
}

// Calls returns the number of calls made to method
func (r *Runtime) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.CallLog {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CallsTo returns the recorded calls to method in order
func (r *Runtime) CallsTo(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.CallLog {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// AddContainer adds a running container that was not created through the runtime
func (r *Runtime) AddContainer(name string, hostPorts ...int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := fmt.Sprintf("foreign-%d", r.seq)
	r.Containers[id] = &Container{ContainerInfo: domain.ContainerInfo{
		ID:        id,
		Name:      name,
		Status:    domain.ContainerRunning,
		HostPorts: hostPorts,
	}}
	return id
}

// Kill marks a container as exited without going through the orchestrator
func (r *Runtime) Kill(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.find(ref); c != nil {
		c.Status = domain.ContainerExited
	}
}

// Running returns the running containers
func (r *Runtime) Running() []Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Container
	for _, c := range r.Containers {
		if c.Running() {
			out = append(out, *c)
		}
	}
	return out
}

// Get returns a copy of a container by id or name
func (r *Runtime) Get(ref string) (Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.find(ref)
	if c == nil {
		return Container{}, false
	}
	return *c, true
}

func (r *Runtime) find(ref string) *Container {
	if c, ok := r.Containers[ref]; ok {
		return c
	}
	for _, c := range r.Containers {
		if c.Name == ref {
			return c
		}
	}
	return nil
}

func (r *Runtime) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record("Ping")
}

func (r *Runtime) EnsureNetwork(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("EnsureNetwork", name); err != nil {
		return false, err
	}
	if r.Networks[name] {
		return false, nil
	}
	r.Networks[name] = true
	return true, nil
}

func (r *Runtime) InspectContainer(ctx context.Context, ref string) (*domain.ContainerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("InspectContainer", ref); err != nil {
		return nil, err
	}
	c := r.find(ref)
	if c == nil {
		return nil, fmt.Errorf("container %s: %w", ref, domain.ErrNotFound)
	}
	info := c.ContainerInfo
	return &info, nil
}

func (r *Runtime) ListContainers(ctx context.Context, all bool) ([]domain.ContainerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ListContainers", all); err != nil {
		return nil, err
	}
	var out []domain.ContainerInfo
	for _, c := range r.Containers {
		if all || c.Running() {
			out = append(out, c.ContainerInfo)
		}
	}
	return out, nil
}

func (r *Runtime) RunContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("RunContainer", spec); err != nil {
		return "", err
	}
	if spec.Name != "" && r.find(spec.Name) != nil {
		return "", fmt.Errorf("container name %s already in use", spec.Name)
	}
	r.seq++
	id := fmt.Sprintf("c%04d", r.seq)
	r.Containers[id] = &Container{
		ContainerInfo: domain.ContainerInfo{
			ID:        id,
			Name:      spec.Name,
			Image:     spec.Image,
			Status:    domain.ContainerRunning,
			Args:      spec.Cmd,
			HostPorts: spec.Ports,
		},
		Spec: spec,
	}
	return id, nil
}

func (r *Runtime) StopContainer(ctx context.Context, ref string, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("StopContainer", ref); err != nil {
		return err
	}
	c := r.find(ref)
	if c == nil {
		return fmt.Errorf("container %s: %w", ref, domain.ErrNotFound)
	}
	c.Status = domain.ContainerExited
	return nil
}

func (r *Runtime) RemoveContainer(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("RemoveContainer", ref); err != nil {
		return err
	}
	c := r.find(ref)
	if c == nil {
		return fmt.Errorf("container %s: %w", ref, domain.ErrNotFound)
	}
	delete(r.Containers, c.ID)
	return nil
}

// Exec runs the installed handler outside the runtime lock so slow commands
// do not block other calls
func (r *Runtime) Exec(ctx context.Context, ref string, spec domain.ExecSpec) (int, error) {
	r.mu.Lock()
	if err := r.record("Exec", ref, spec.Cmd); err != nil {
		r.mu.Unlock()
		return -1, err
	}
	c := r.find(ref)
	if c == nil || !c.Running() {
		r.mu.Unlock()
		return -1, fmt.Errorf("container %s is not running", ref)
	}
	snapshot := *c
	fn := r.ExecHandler
	r.mu.Unlock()

	if fn == nil {
		return 0, nil
	}
	if spec.Output == nil {
		spec.Output = io.Discard
	}
	return fn(ctx, &snapshot, spec)
}

func (r *Runtime) CopyToContainer(ctx context.Context, ref, dstDir string, tarStream io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("CopyToContainer", ref, dstDir); err != nil {
		return err
	}
	if r.find(ref) == nil {
		return fmt.Errorf("container %s: %w", ref, domain.ErrNotFound)
	}
	_, err := io.Copy(io.Discard, tarStream)
	return err
}

func (r *Runtime) CopyFromContainer(ctx context.Context, ref, srcPath, hostDir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("CopyFromContainer", ref, srcPath, hostDir); err != nil {
		return err
	}
	if r.find(ref) == nil {
		return fmt.Errorf("container %s: %w", ref, domain.ErrNotFound)
	}
	files, ok := r.Files[srcPath]
	if !ok {
		return fmt.Errorf("path %s: %w", srcPath, domain.ErrNotFound)
	}
	if err := os.RemoveAll(hostDir); err != nil {
		return err
	}
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return err
	}
	for name, content := range files {
		p := filepath.Join(hostDir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) CommitContainer(ctx context.Context, ref, image string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("CommitContainer", ref, image); err != nil {
		return "", err
	}
	if r.find(ref) == nil {
		return "", fmt.Errorf("container %s: %w", ref, domain.ErrNotFound)
	}
	r.seq++
	id := fmt.Sprintf("sha256:commit%04d", r.seq)
	r.Images[image] = id
	return id, nil
}

func (r *Runtime) FindImage(ctx context.Context, ref string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("FindImage", ref); err != nil {
		return "", err
	}
	id, ok := r.Images[ref]
	if !ok {
		return "", fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
	}
	return id, nil
}

func (r *Runtime) BuildImage(ctx context.Context, recipe domain.BuildRecipe, tag string) (string, error) {
	r.mu.Lock()
	err := r.record("BuildImage", recipe, tag)
	delay := r.BuildDelay
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := fmt.Sprintf("sha256:build%04d", r.seq)
	r.Images[tag] = id
	return id, nil
}

func (r *Runtime) RemoveImage(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("RemoveImage", ref); err != nil {
		return err
	}
	if _, ok := r.Images[ref]; !ok {
		return fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
	}
	delete(r.Images, ref)
	return nil
}
