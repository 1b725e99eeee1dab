package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"centinela/config"
)

// Builder constructs the camera loop for one inventory entry. It is
// where the per-camera tracker override and the shared collaborators
// get wired in.
type Builder func(ref config.CameraRef) (*Camera, error)

type supervised struct {
	cam    *Camera
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns one running Camera per inventory entry. One camera
// failing to build or run never affects the others.
type Supervisor struct {
	build Builder
	log   *slog.Logger

	mu      sync.Mutex
	running map[string]*supervised
}

func NewSupervisor(build Builder, log *slog.Logger) *Supervisor {
	return &Supervisor{
		build:   build,
		log:     log,
		running: map[string]*supervised{},
	}
}

// Start builds and launches the loop for one camera.
func (s *Supervisor) Start(ctx context.Context, ref config.CameraRef) error {
	name := ref.Camera.Name
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[name]; ok {
		return fmt.Errorf("camera %s already running", name)
	}

	cam, err := s.build(ref)
	if err != nil {
		return fmt.Errorf("building camera %s: %w", name, err)
	}

	camCtx, cancel := context.WithCancel(ctx)
	sv := &supervised{cam: cam, cancel: cancel, done: make(chan struct{})}
	s.running[name] = sv
	go func() {
		defer close(sv.done)
		cam.Run(camCtx)
	}()
	s.log.Info("camera started", "camera", name, "building", ref.Building, "room", ref.Room)
	return nil
}

// StartAll launches every camera in the inventory. Individual failures
// are logged and skipped.
func (s *Supervisor) StartAll(ctx context.Context, refs []config.CameraRef) {
	for _, ref := range refs {
		if err := s.Start(ctx, ref); err != nil {
			s.log.Warn("camera start failed", "camera", ref.Camera.Name, "error", err)
		}
	}
}

// Stop cancels one camera's loop and waits for it to release its
// source.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	sv, ok := s.running[name]
	if ok {
		delete(s.running, name)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("camera %s not running", name)
	}
	sv.cancel()
	<-sv.done
	s.log.Info("camera stopped", "camera", name)
	return nil
}

// StopAll stops every running camera and waits for all of them.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	stopping := s.running
	s.running = map[string]*supervised{}
	s.mu.Unlock()

	for name, sv := range stopping {
		sv.cancel()
		<-sv.done
		s.log.Info("camera stopped", "camera", name)
	}
}

// Reload stops every pipeline and starts the set described by the new
// inventory.
func (s *Supervisor) Reload(ctx context.Context, refs []config.CameraRef) {
	s.StopAll()
	s.StartAll(ctx, refs)
}

// States reports the lifecycle state of every supervised camera.
func (s *Supervisor) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make(map[string]State, len(s.running))
	for name, sv := range s.running {
		states[name] = sv.cam.State()
	}
	return states
}

// Running returns the number of supervised cameras.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
