package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"centinela/background"
	"centinela/capture"
	"centinela/detection"
	"centinela/event"
	"centinela/identity"
	"centinela/notify"
	"centinela/overlay"
	"centinela/tracking"
	"centinela/upload"
)

// State is the camera loop lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

const (
	// DefaultMinConfidence is the detection confidence floor for the
	// person class.
	DefaultMinConfidence = 0.35
	// DefaultHeadFraction is the share of the track box, from the top,
	// cropped for face matching.
	DefaultHeadFraction = 1.0 / 3.0

	defaultReconnectDelay = 500 * time.Millisecond
	defaultReadRetryDelay = 20 * time.Millisecond
)

// IdentityResolver matches a face crop against the known-person
// registry.
type IdentityResolver interface {
	Resolve(crop gocv.Mat) identity.Identity
	Known() int
}

// EventStore persists events.
type EventStore interface {
	RecordEvent(ctx context.Context, evt event.Event) (int64, error)
}

// FrameSink receives every captured frame, processed or not.
type FrameSink func(camera string, frame gocv.Mat)

// EventSink receives every event the pipeline produces.
type EventSink func(evt event.Event)

// CameraConfig wires one camera loop. Name and Source are required;
// everything else degrades to a no-op when absent.
type CameraConfig struct {
	Name   string
	Source capture.Source

	Detector detection.Detector
	// Engine is the primary tracker. Nil disables tracking for this
	// camera; frames are still captured and forwarded.
	Engine   tracking.Engine
	Resolver IdentityResolver

	Gate     *AlertGate
	Buffer   *event.Buffer
	Store    EventStore
	Notifier notify.Service
	Speaker  notify.Speaker
	Uploader upload.Uploader
	Runner   *background.Runner
	Evidence EvidenceSaver
	// Annotator, when set, draws the track box and verdict onto
	// evidence snapshots.
	Annotator *overlay.Annotator
	// Comparator runs the side-by-side tracker diagnostic. Nil disables
	// it.
	Comparator *Comparator

	// Stride processes every Nth frame through detection and tracking.
	Stride int
	// MinConfidence is the person detection floor.
	MinConfidence float64
	// HeadFraction is the share of the box height used for the face
	// crop.
	HeadFraction float64

	ReconnectDelay time.Duration
	ReadRetryDelay time.Duration

	FrameSink FrameSink
	EventSink EventSink

	Log *slog.Logger
	Now func() time.Time
}

// Camera runs the capture, detect, track, resolve, alert loop for one
// video source. All frame processing is synchronous inside Run; only
// uploads and notifications are handed to the background runner.
type Camera struct {
	cfg      CameraConfig
	state    atomic.Int32
	frameIdx int

	// session distinguishes engine restarts: track identifiers are only
	// unique within one session, so consumers correlating across runs
	// must key on (camera, session, trackID).
	session string

	ownRunner bool
}

func NewCamera(cfg CameraConfig) *Camera {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stride < 1 {
		cfg.Stride = 1
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.HeadFraction <= 0 || cfg.HeadFraction > 1 {
		cfg.HeadFraction = DefaultHeadFraction
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ReadRetryDelay <= 0 {
		cfg.ReadRetryDelay = defaultReadRetryDelay
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewService("", "")
	}
	if cfg.Speaker == nil {
		cfg.Speaker = notify.NewSpeaker("")
	}
	if cfg.Uploader == nil {
		cfg.Uploader = upload.New("", cfg.Log)
	}
	cam := &Camera{cfg: cfg, session: uuid.NewString()}
	if cfg.Runner == nil {
		cam.cfg.Runner = background.NewRunner(2, 32, cfg.Log)
		cam.ownRunner = true
	}
	return cam
}

// Name returns the camera identifier.
func (c *Camera) Name() string { return c.cfg.Name }

// Session returns the identifier of this engine session.
func (c *Camera) Session() string { return c.session }

// State returns the current lifecycle state.
func (c *Camera) State() State { return State(c.state.Load()) }

func (c *Camera) setState(s State) { c.state.Store(int32(s)) }

// Run drives the frame loop until ctx is cancelled. It owns the source
// for its duration and releases it on exit.
func (c *Camera) Run(ctx context.Context) {
	c.cfg.Log.Info("camera session started", "camera", c.cfg.Name, "session", c.session)
	c.setState(StateConnecting)
	defer func() {
		if err := c.cfg.Source.Close(); err != nil {
			c.cfg.Log.Warn("closing camera source", "camera", c.cfg.Name, "error", err)
		}
		if c.ownRunner {
			c.cfg.Runner.Close()
		}
		c.setState(StateStopped)
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if ctx.Err() != nil {
			c.setState(StateStopping)
			return
		}
		if !c.cfg.Source.IsOpened() {
			c.setState(StateConnecting)
			if err := c.cfg.Source.Open(); err != nil {
				c.cfg.Log.Warn("camera reconnect failed", "camera", c.cfg.Name, "error", err)
				if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
					c.setState(StateStopping)
					return
				}
				continue
			}
		}
		if !c.cfg.Source.Read(&frame) {
			// A failed read does not advance the frame counter.
			c.setState(StateConnecting)
			if !sleepCtx(ctx, c.cfg.ReadRetryDelay) {
				c.setState(StateStopping)
				return
			}
			continue
		}
		c.setState(StateRunning)
		c.frameIdx++
		if c.frameIdx%c.cfg.Stride == 0 {
			c.processFrame(ctx, frame)
		}
		if c.cfg.FrameSink != nil {
			c.cfg.FrameSink(c.cfg.Name, frame)
		}
	}
}

// processFrame runs detection, tracking and per-track handling. Any
// failure is logged and the frame is treated as producing no tracks.
func (c *Camera) processFrame(ctx context.Context, frame gocv.Mat) {
	if c.cfg.Detector == nil {
		return
	}
	dets, err := c.cfg.Detector.Detect(frame)
	if err != nil {
		c.cfg.Log.Warn("detection failed", "camera", c.cfg.Name, "error", err)
		return
	}
	persons := detection.FilterClass(dets, detection.PersonClass, c.cfg.MinConfidence)
	objects := tracking.ObjectsFromDetections(persons)

	if c.cfg.Comparator != nil {
		c.cfg.Comparator.Observe(c.cfg.Name, c.frameIdx, objects, frame)
	}
	if c.cfg.Engine == nil {
		return
	}
	tracks, err := c.cfg.Engine.Update(objects, frame)
	if err != nil {
		c.cfg.Log.Warn("tracker update failed", "camera", c.cfg.Name, "error", err)
		return
	}

	now := c.cfg.Now()
	for _, t := range tracks {
		if !t.Activated() {
			continue
		}
		c.handleTrack(ctx, frame, t, now)
	}
}

func (c *Camera) handleTrack(ctx context.Context, frame gocv.Mat, t *tracking.Track, now time.Time) {
	box := clampRect(t.Box().Rect(), frame.Cols(), frame.Rows())
	verdict := c.resolveIdentity(frame, box)

	name := verdict.Name
	role := verdict.Role
	if !verdict.Match {
		name = event.UnknownName
		role = event.RoleUnknown
	}

	evidencePath := ""
	if !verdict.Match && c.cfg.Evidence != nil {
		snapshot := frame
		if c.cfg.Annotator != nil {
			snapshot = frame.Clone()
			c.cfg.Annotator.DrawBox(&snapshot, box, fmt.Sprintf("%s #%d", name, t.ID()), true)
		}
		path, err := c.cfg.Evidence.Save(c.cfg.Name, t.ID(), now, snapshot)
		if c.cfg.Annotator != nil {
			snapshot.Close()
		}
		if err != nil {
			c.cfg.Log.Warn("evidence save failed", "camera", c.cfg.Name, "track", t.ID(), "error", err)
		} else {
			evidencePath = path
			uploader, log := c.cfg.Uploader, c.cfg.Log
			c.cfg.Runner.Submit("upload", func() error {
				if err := uploader.Upload(context.Background(), path); err != nil {
					log.Warn("evidence upload failed", "path", path, "error", err)
				}
				return nil
			})
		}
	}

	evt := event.Event{
		Time:         now,
		Camera:       c.cfg.Name,
		Session:      c.session,
		TrackID:      t.ID(),
		PersonName:   name,
		Role:         role,
		Confidence:   float64(t.Score()),
		Box:          box,
		EvidencePath: evidencePath,
	}
	if c.cfg.Store != nil {
		if _, err := c.cfg.Store.RecordEvent(ctx, evt); err != nil {
			c.cfg.Log.Warn("event append failed", "camera", c.cfg.Name, "error", err)
		}
	}
	if c.cfg.Buffer != nil {
		c.cfg.Buffer.Add(evt)
	}
	if c.cfg.EventSink != nil {
		c.cfg.EventSink(evt)
	}

	if verdict.Match || c.cfg.Gate == nil {
		return
	}
	if !c.cfg.Gate.ShouldAlert(c.cfg.Name, t.ID(), now) {
		return
	}
	c.cfg.Gate.Record(c.cfg.Name, t.ID(), now)

	camera, log := c.cfg.Name, c.cfg.Log
	speaker, notifier := c.cfg.Speaker, c.cfg.Notifier
	message := fmt.Sprintf("Alerta: persona desconocida en cámara %s", camera)
	c.cfg.Runner.Submit("speak", func() error {
		if err := speaker.Say(context.Background(), message); err != nil {
			log.Warn("speech alert failed", "camera", camera, "error", err)
		}
		return nil
	})
	c.cfg.Runner.Submit("notify", func() error {
		if err := notifier.NotifyUnknownPerson(context.Background(), camera, evidencePath); err != nil {
			log.Warn("notification failed", "camera", camera, "error", err)
		}
		return nil
	})
}

// resolveIdentity crops the head region of the box and matches it
// against the registry. Any degenerate crop or empty registry yields
// the unknown verdict.
func (c *Camera) resolveIdentity(frame gocv.Mat, box image.Rectangle) identity.Identity {
	if c.cfg.Resolver == nil || c.cfg.Resolver.Known() == 0 {
		return identity.Unknown()
	}
	head := headRegion(box, c.cfg.HeadFraction, frame.Cols(), frame.Rows())
	if head.Empty() {
		return identity.Unknown()
	}
	crop := frame.Region(head)
	defer crop.Close()
	return c.cfg.Resolver.Resolve(crop)
}

// headRegion returns the top fraction of the box, clamped to the frame.
func headRegion(box image.Rectangle, fraction float64, width, height int) image.Rectangle {
	headH := int(float64(box.Dy()) * fraction)
	if headH < 1 {
		headH = 1
	}
	head := image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+headH)
	return clampRect(head, width, height)
}

func clampRect(r image.Rectangle, width, height int) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, width, height))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
