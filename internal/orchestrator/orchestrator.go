// Package orchestrator wires every subsystem together and owns the main
// frame loop: pull OutSim frames, poll InSim non-blocking, dispatch
// decoded events into the session engine, and push the result to the
// HUD and the WebSocket broadcaster.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/paddocklink/telemetry-bridge/internal/broadcast"
	"github.com/paddocklink/telemetry-bridge/internal/collaborators"
	"github.com/paddocklink/telemetry-bridge/internal/config"
	"github.com/paddocklink/telemetry-bridge/internal/hud"
	"github.com/paddocklink/telemetry-bridge/internal/insim"
	"github.com/paddocklink/telemetry-bridge/internal/outsim"
	"github.com/paddocklink/telemetry-bridge/internal/pbstore"
	"github.com/paddocklink/telemetry-bridge/internal/session"
)

// pollTimeout bounds how long one iteration waits for buffered InSim
// bytes before moving on; InSim events never block the frame loop for
// longer than this.
const pollTimeout = 5 * time.Millisecond

// Orchestrator owns every subsystem's lifetime and is the only component
// that touches more than one of them directly.
type Orchestrator struct {
	Logger zerolog.Logger

	insimClient     *insim.Client
	outsimIngester  *outsim.Ingester
	engine          *session.Engine
	pbStore         *pbstore.Store
	hud             *hud.Controller
	broadcastServer *broadcast.Server
	configWatcher   *config.Watcher

	beepDriver    collaborators.BeepDriver
	radarRenderer collaborators.RadarRenderer

	spMode *session.ModeConfig
	mpMode *session.ModeConfig
	active *session.ModeConfig

	lastFocusPLID *uint8

	// lastFrame and lastCars hold the most recent OutSim/MCI samples so
	// OnStatus can derive radar targets without threading them through the
	// engine's Status.
	lastFrame outsim.Frame
	lastCars  []broadcast.CarSnapshot
}

// New builds every subsystem from the config file at configPath without
// starting any of them. dataDir holds the PB store database and its
// migrations subdirectory.
func New(configPath, dataDir string, logger zerolog.Logger) (*Orchestrator, error) {
	o := &Orchestrator{Logger: logger}

	watcher, err := config.NewWatcher(configPath, logger, o.onConfigReloaded)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading config: %w", err)
	}
	o.configWatcher = watcher
	cfg := watcher.Get()

	store, err := pbstore.NewStore(
		filepath.Join(dataDir, "telemetry.db"),
		filepath.Join(dataDir, "migrations"),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: opening pb store: %w", err)
	}
	o.pbStore = store

	o.insimClient = insim.NewClient(cfg.InSim.Host, cfg.InSim.Port, cfg.InSim.AdminPassword, cfg.InSim.IntervalMs, logger)

	ingester, err := outsim.NewIngester(outsim.Config{
		Port:                cfg.OutSim.Port,
		AllowedSources:      cfg.OutSim.AllowedSources,
		MaxPacketsPerSecond: cfg.OutSim.MaxPacketsPerSecond,
		UpdateHz:            cfg.OutSim.UpdateHz,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: starting outsim ingester: %w", err)
	}
	o.outsimIngester = ingester

	o.engine = session.NewEngine(store, logger, hud.RadarButtonID, hud.BeepsButtonID)
	o.hud = hud.NewController(o.insimClient, logger)

	o.spMode = &session.ModeConfig{RadarEnabled: cfg.SP.RadarEnabled, BeepsEnabled: cfg.SP.BeepsEnabled}
	o.mpMode = &session.ModeConfig{RadarEnabled: cfg.MP.RadarEnabled, BeepsEnabled: cfg.MP.BeepsEnabled}
	o.active = o.spMode

	o.beepDriver = collaborators.SelectBeepDriver(logger)
	o.radarRenderer = collaborators.SelectRadarRenderer(logger)

	if cfg.TelemetryWS.Enabled {
		o.broadcastServer = broadcast.NewServer(cfg.TelemetryWS.Host, cfg.TelemetryWS.Port, cfg.TelemetryWS.UpdateHz, logger)
	}

	o.wireEngine()
	return o, nil
}

func (o *Orchestrator) wireEngine() {
	o.engine.OnModeChanged = func(multiplayer bool) {
		if multiplayer {
			o.active = o.mpMode
		} else {
			o.active = o.spMode
		}
		o.hud.Update(o.active.RadarEnabled, o.active.BeepsEnabled, "")
	}

	o.engine.OnFocusChanged = func(plid uint8) {
		o.lastFocusPLID = &plid
		if o.broadcastServer != nil {
			o.broadcastServer.SetFocusPLID(&plid)
		}
	}

	o.engine.OnStatus = func(status session.Status) {
		printStatusLine(status)
		if o.broadcastServer != nil {
			o.broadcastServer.UpdatePlayerLap(status, o.computeRadarTargets())
		}
	}
}

// computeRadarTargets projects the latest MCI car list relative to the
// tracked player's latest OutSim position and heading. It returns nil when
// there is no tracked driver yet or no other cars to project.
func (o *Orchestrator) computeRadarTargets() []session.RadarTarget {
	plid := o.engine.Model.TrackedPLID
	if plid == nil || len(o.lastCars) == 0 {
		return nil
	}

	others := make([][2]float64, 0, len(o.lastCars))
	for _, c := range o.lastCars {
		if c.PLID == *plid {
			continue
		}
		others = append(others, [2]float64{c.X, c.Y})
	}
	if len(others) == 0 {
		return nil
	}

	playerX := broadcast.ScaleCoordinate(float64(o.lastFrame.Position[0]))
	playerY := broadcast.ScaleCoordinate(float64(o.lastFrame.Position[1]))
	yaw, _, _ := o.lastFrame.Orientation()

	targets, err := session.ComputeRadarTargets(playerX, playerY, yaw, others, session.DefaultRadarRangeMeters)
	if err != nil {
		o.Logger.Warn().Msgf("orchestrator: radar computation failed: %v", err)
		return nil
	}
	return targets
}

// onConfigReloaded applies a hot-reloaded config's mode toggles. Telemetry
// WebSocket section changes (enabled, host, port) require a restart of
// that subsystem since the listening socket cannot migrate in place.
func (o *Orchestrator) onConfigReloaded(old, new *config.Config) {
	o.spMode.RadarEnabled = new.SP.RadarEnabled
	o.spMode.BeepsEnabled = new.SP.BeepsEnabled
	o.mpMode.RadarEnabled = new.MP.RadarEnabled
	o.mpMode.BeepsEnabled = new.MP.BeepsEnabled
	o.hud.Update(o.active.RadarEnabled, o.active.BeepsEnabled, "")

	if wsSectionChanged(old.TelemetryWS, new.TelemetryWS) {
		o.restartBroadcastServer(new)
	}
}

func wsSectionChanged(a, b config.TelemetryWSConfig) bool {
	return a.Enabled != b.Enabled || a.Host != b.Host || a.Port != b.Port
}

func (o *Orchestrator) restartBroadcastServer(cfg *config.Config) {
	if o.broadcastServer != nil {
		o.broadcastServer.Stop()
		o.broadcastServer = nil
	}
	if !cfg.TelemetryWS.Enabled {
		return
	}
	o.broadcastServer = broadcast.NewServer(cfg.TelemetryWS.Host, cfg.TelemetryWS.Port, cfg.TelemetryWS.UpdateHz, o.Logger)
	if err := o.broadcastServer.Start(); err != nil {
		o.Logger.Error().Msgf("orchestrator: failed to restart broadcast server: %v", err)
		o.broadcastServer = nil
	}
}

// Run connects to InSim and runs the frame loop until ctx is cancelled or
// a transport error occurs. It always closes every subsystem before
// returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.insimClient.Connect(); err != nil {
		return fmt.Errorf("orchestrator: insim connect: %w", err)
	}
	defer o.insimClient.Close()
	defer o.outsimIngester.Close()

	o.configWatcher.Start()
	defer o.configWatcher.Stop()

	if o.broadcastServer != nil {
		if err := o.broadcastServer.Start(); err != nil {
			return fmt.Errorf("orchestrator: broadcast server: %w", err)
		}
		defer o.broadcastServer.Stop()
	}

	o.hud.Show(o.active.RadarEnabled, o.active.BeepsEnabled, "")
	defer o.hud.Remove()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, ok, err := o.outsimIngester.Recv()
		if err != nil {
			return fmt.Errorf("orchestrator: outsim transport error: %w", err)
		}

		events, err := o.insimClient.Poll(pollTimeout)
		if err != nil {
			return fmt.Errorf("orchestrator: insim transport error: %w", err)
		}
		o.dispatchEvents(events)

		if ok {
			o.lastFrame = frame
			o.engine.OnFrame(frame)
			o.radarRenderer.Draw(frame)
			if o.broadcastServer != nil {
				o.broadcastServer.UpdateOutSim(frame)
			}
		}
	}
}

// dispatchEvents runs each decoded event through the session engine,
// HUD, and broadcaster. A panicking handler is logged and skipped so one
// bad event never stalls the decoder.
func (o *Orchestrator) dispatchEvents(events []insim.Event) {
	for _, ev := range events {
		o.dispatchOne(ev)
	}
}

func (o *Orchestrator) dispatchOne(ev insim.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.Logger.Error().Msgf("orchestrator: event handler panicked, dropping event: %v", r)
		}
	}()

	switch e := ev.(type) {
	case insim.StateEvent:
		o.engine.OnState(e)
		if o.broadcastServer != nil {
			o.broadcastServer.UpdateTrackContext(e.Track, e.Car)
		}
	case insim.NewPlayerEvent:
		// car-name resolution already happened in the decoder; nothing
		// further to do here.
	case insim.LapEvent:
		o.engine.OnLap(e)
	case insim.SplitEvent:
		o.engine.OnSplit(e)
	case insim.ButtonClickEvent:
		o.engine.OnButtonClick(e, o.active)
		o.hud.Update(o.active.RadarEnabled, o.active.BeepsEnabled, "")
	case insim.MultiCarInfoEvent:
		o.lastCars = carSnapshots(e.Cars)
		if o.broadcastServer != nil {
			o.broadcastServer.UpdateMCI(o.lastCars)
		}
	}
}

func carSnapshots(cars []insim.CarInfo) []broadcast.CarSnapshot {
	out := make([]broadcast.CarSnapshot, len(cars))
	for i, c := range cars {
		out[i] = broadcast.NewCarSnapshot(c.PLID, c.Node, c.Lap, c.Position, c.Info, c.Spare, c.X, c.Y, c.Z, c.Speed, c.Direction, c.Heading, c.AngularVelocity)
	}
	return out
}

// printStatusLine writes a carriage-return refreshed console line with
// the fixed fields the console collaborator is specified to show.
func printStatusLine(s session.Status) {
	best := "--:--.---"
	if s.SessionBestMs != nil {
		best = formatMs(*s.SessionBestMs)
	}
	pb := "--:--.---"
	if s.PersonalBestMs != nil {
		pb = formatMs(uint32(*s.PersonalBestMs))
	}
	delta := ""
	if s.DeltaMs != nil {
		delta = formatSignedMs(*s.DeltaMs)
	}
	fmt.Printf("\rCurrent lap: %s | Session best: %s | Personal best: %s | Δ vs PB: %s ",
		formatMs(s.CurrentLapMs), best, pb, delta)
}

func formatMs(ms uint32) string {
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

func formatSignedMs(ms int) string {
	sign := "+"
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	return fmt.Sprintf("%s%d.%03d", sign, ms/1000, ms%1000)
}
