package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"centinela/api"
	"centinela/background"
	"centinela/capture"
	"centinela/config"
	"centinela/detection"
	"centinela/event"
	"centinela/identity"
	"centinela/notify"
	"centinela/overlay"
	"centinela/pipeline"
	"centinela/store"
	"centinela/tracking"
	"centinela/upload"
)

const version = "1.0.0"

func newRootCommand() *cobra.Command {
	var baseDir string

	root := &cobra.Command{
		Use:           "centinela",
		Short:         "Multi-camera person tracking and alerting",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&baseDir, "base-dir", "d", "", "Data directory (defaults to the working directory)")

	root.AddCommand(newRunCommand(&baseDir))
	root.AddCommand(newInitDBCommand(&baseDir))
	root.AddCommand(newRegisterCommand(&baseDir))
	root.AddCommand(newPersonsCommand(&baseDir))
	root.AddCommand(newEventsCommand(&baseDir))
	root.AddCommand(newCamerasCommand(&baseDir))
	root.AddCommand(newSummaryCommand(&baseDir))
	root.AddCommand(newTestNotifyCommand(&baseDir))
	root.AddCommand(newVersionCommand())
	return root
}

func loadConfig(baseDir string) (*config.Config, error) {
	// A .env next to the data is optional.
	_ = godotenv.Load()
	cfg, err := config.FromEnv(baseDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRunCommand(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the camera pipelines and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}
			log := newLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lock := flock.New(filepath.Join(cfg.BaseDir, "centinela.lock"))
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another centinela instance is already running")
			}
			defer lock.Unlock() //nolint:errcheck

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Seed(ctx); err != nil {
				return err
			}

			var detector detection.Detector
			if d, err := detection.NewYOLODetector(detection.YOLOConfig{
				WeightsPath: cfg.YOLOWeights,
				ConfigPath:  cfg.YOLOConfig,
				NamesPath:   cfg.YOLONames,
			}, log); err != nil {
				log.Warn("person detector unavailable, tracking disabled", "error", err)
			} else {
				detector = d
				defer d.Close()
			}

			var resolver *identity.Resolver
			if cfg.FaceModel != "" && cfg.FaceCascade != "" {
				emb, err := identity.NewNetEmbedder(identity.NetEmbedderConfig{
					ModelPath:   cfg.FaceModel,
					CascadePath: cfg.FaceCascade,
				})
				if err != nil {
					log.Warn("face recognition unavailable", "error", err)
				} else {
					defer emb.Close()
					resolver = identity.NewResolver(st, emb, identity.DefaultThreshold, log)
					if err := resolver.Reload(ctx); err != nil {
						log.Warn("face registry load failed", "error", err)
					}
				}
			} else {
				log.Info("face recognition disabled, FACE_MODEL and FACE_CASCADE not set")
			}

			buffer := event.NewBuffer(cfg.BufferWindow)
			gate := pipeline.NewAlertGate(cfg.AlertCooldown)
			runner := background.NewRunner(4, 128, log)
			defer runner.Close()

			notifier := notify.NewService(cfg.TelegramToken, cfg.TelegramChat)
			speaker := notify.NewSpeaker(cfg.TTSCommand)
			uploader := upload.New(cfg.UploadMethod, log)
			evidence := pipeline.NewDiskEvidence(cfg.EvidenceDir)
			annotator := overlay.NewAnnotator()
			extractor := tracking.NewHistogramExtractor(32)
			compareLog := pipeline.NewCompareLog(cfg.CompareCSVPath())
			trackCfg := tracking.DefaultConfig()

			build := func(ref config.CameraRef) (*pipeline.Camera, error) {
				mode := tracking.Mode(cfg.Tracker)
				if ref.Camera.Tracker != "" {
					mode = tracking.Mode(strings.ToLower(ref.Camera.Tracker))
				}
				engine, err := tracking.Select(mode, trackCfg, extractor, log)
				if err != nil {
					log.Warn("tracking disabled for camera", "camera", ref.Camera.Name, "error", err)
					engine = nil
				}
				var comparator *pipeline.Comparator
				if cfg.CompareEngines {
					comparator = pipeline.NewComparator(trackCfg, extractor, compareLog, log)
				}
				cc := pipeline.CameraConfig{
					Name:         ref.Camera.Name,
					Source:       capture.NewVideoSource(ref.Camera.Source.String()),
					Detector:     detector,
					Engine:       engine,
					Gate:         gate,
					Buffer:       buffer,
					Store:        st,
					Notifier:     notifier,
					Speaker:      speaker,
					Uploader:     uploader,
					Runner:       runner,
					Evidence:     evidence,
					Annotator:    annotator,
					Comparator:   comparator,
					Stride:       cfg.ProcessEvery,
					HeadFraction: cfg.HeadFraction,
					Log:          log,
				}
				if resolver != nil {
					cc.Resolver = resolver
				}
				return pipeline.NewCamera(cc), nil
			}

			sup := pipeline.NewSupervisor(build, log)
			cams, err := config.LoadCameras(cfg.CamerasPath)
			if err != nil {
				return err
			}
			sup.StartAll(ctx, cams.Flatten())
			defer sup.StopAll()

			srv := api.NewServer(cfg.HTTPAddr, st, buffer, cfg.CamerasPath, func() map[string]string {
				out := map[string]string{}
				for name, state := range sup.States() {
					out[name] = state.String()
				}
				return out
			}, log)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer srv.Stop()

			// SIGHUP reloads the camera inventory and the face registry.
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			ticker := time.NewTicker(cfg.BufferWindow)
			defer ticker.Stop()

			log.Info("centinela running", "cameras", sup.Running(), "api", cfg.HTTPAddr)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hup:
					log.Info("reloading configuration")
					if resolver != nil {
						if err := resolver.Reload(ctx); err != nil {
							log.Warn("face registry reload failed", "error", err)
						}
					}
					cams, err := config.LoadCameras(cfg.CamerasPath)
					if err != nil {
						log.Warn("camera inventory reload failed", "error", err)
						continue
					}
					sup.Reload(ctx, cams.Flatten())
				case <-ticker.C:
					log.Info("activity", "summary", buffer.Summarize())
					gate.Sweep(time.Now(), time.Hour)
				}
			}
		},
	}
}

func newInitDBCommand(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema and seed the demo persons",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Seed(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database ready at", cfg.DBPath)
			return nil
		},
	}
}

func newRegisterCommand(baseDir *string) *cobra.Command {
	var name, role, image, source string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a person with a reference face image",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			if image == "" && source == "" {
				return errors.New("either --image or --source is required")
			}
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}

			var facePath string
			if image != "" {
				facePath, err = importFaceImage(cfg.FacesDir, name, image)
			} else {
				facePath, err = captureFaceImage(cfg.FacesDir, name, source)
			}
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.UpsertPerson(cmd.Context(), name, role, facePath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (id %d) with face %s\n", name, id, facePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Person name (unique)")
	cmd.Flags().StringVar(&role, "role", event.RoleEmployee, "Person role")
	cmd.Flags().StringVar(&image, "image", "", "Path to a face image")
	cmd.Flags().StringVar(&source, "source", "", "Capture the face from a camera (device index or URL) instead of a file")
	return cmd
}

// captureFaceImage grabs one frame from the camera and stores it as the
// reference face.
func captureFaceImage(facesDir, name, source string) (string, error) {
	src := capture.NewVideoSource(source)
	if err := src.Open(); err != nil {
		return "", fmt.Errorf("open camera %s: %w", source, err)
	}
	defer src.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	if !src.Read(&frame) {
		return "", fmt.Errorf("camera %s produced no frame", source)
	}

	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	path := filepath.Join(facesDir, fmt.Sprintf("%s_%s.jpg", slug, uuid.NewString()[:8]))
	if ok := gocv.IMWrite(path, frame); !ok {
		return "", fmt.Errorf("write face image %s", path)
	}
	return path, nil
}

// importFaceImage copies the reference image into the faces directory
// under a collision-free name.
func importFaceImage(facesDir, name, imagePath string) (string, error) {
	src, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("open face image: %w", err)
	}
	defer src.Close()

	ext := filepath.Ext(imagePath)
	if ext == "" {
		ext = ".jpg"
	}
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	dstPath := filepath.Join(facesDir, fmt.Sprintf("%s_%s%s", slug, uuid.NewString()[:8], ext))

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("create face image: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("copy face image: %w", err)
	}
	return dstPath, nil
}

func newPersonsCommand(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "persons",
		Short: "List registered persons",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			persons, err := st.Persons(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(persons))
			for _, p := range persons {
				rows = append(rows, []string{strconv.FormatInt(p.ID, 10), p.Name, p.Role, p.FacePath})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Role", "Face"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newEventsCommand(baseDir *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.RecentEvents(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					strconv.FormatInt(e.ID, 10), e.Time, e.Camera,
					strconv.Itoa(e.TrackID), e.PersonName, e.Role, e.EvidencePath,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Time", "Camera", "Track", "Person", "Role", "Evidence"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events to show")
	return cmd
}

func newCamerasCommand(baseDir *string) *cobra.Command {
	cameras := &cobra.Command{
		Use:   "cameras",
		Short: "Inspect and edit the camera inventory",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured cameras",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}
			cams, err := config.LoadCameras(cfg.CamerasPath)
			if err != nil {
				return err
			}
			refs := cams.Flatten()
			rows := make([][]string, 0, len(refs))
			for _, ref := range refs {
				rows = append(rows, []string{
					ref.Building, ref.Room, ref.Camera.Name,
					ref.Camera.Source.String(), ref.Camera.Tracker,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Building", "Room", "Camera", "Source", "Tracker"},
				rows,
				nil,
			))
			return nil
		},
	}

	var building, room, name, source, trackerMode string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a camera to the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || source == "" {
				return errors.New("--name and --source are required")
			}
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}
			cams, err := config.LoadCameras(cfg.CamerasPath)
			if err != nil {
				return err
			}
			cams.Add(building, room, config.Camera{
				Name:    name,
				Source:  config.SourceSpec(source),
				Tracker: strings.ToLower(trackerMode),
			})
			if err := config.SaveCameras(cfg.CamerasPath, cfg.ConfigHistoryDir, cams); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added camera %s (%s / %s)\n", name, building, room)
			return nil
		},
	}
	add.Flags().StringVar(&building, "building", "Edificio A", "Building name")
	add.Flags().StringVar(&room, "room", "General", "Room name")
	add.Flags().StringVar(&name, "name", "", "Camera name (unique)")
	add.Flags().StringVar(&source, "source", "", "Device index, file path or RTSP URL")
	add.Flags().StringVar(&trackerMode, "tracker", "", "Per-camera tracker override (bytetrack or deepsort)")

	cameras.AddCommand(list, add)
	return cameras
}

func newSummaryCommand(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show the running instance's recent-activity summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}
			addr := cfg.HTTPAddr
			if strings.HasPrefix(addr, ":") {
				addr = "127.0.0.1" + addr
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/summary", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("is centinela running? %w", err)
			}
			defer resp.Body.Close()

			var payload struct {
				Summary string `json:"summary"`
				Recent  int    `json:"recent"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload.Summary)
			return nil
		},
	}
}

func newTestNotifyCommand(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test message through the configured alert channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*baseDir)
			if err != nil {
				return err
			}
			if cfg.TelegramToken == "" || cfg.TelegramChat == "" {
				return errors.New("TELEGRAM_TOKEN and TELEGRAM_CHAT are not configured")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := notify.NewService(cfg.TelegramToken, cfg.TelegramChat).Test(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "test notification sent")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "centinela", version)
		},
	}
}
