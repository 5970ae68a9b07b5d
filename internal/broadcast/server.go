// Package broadcast serves a live JSON snapshot of the session over a
// hand-rolled WebSocket endpoint. No third-party WebSocket library is
// used: the handshake and frame encoding are implemented directly
// against RFC 6455.
package broadcast

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/paddocklink/telemetry-bridge/internal/outsim"
	"github.com/paddocklink/telemetry-bridge/internal/session"
)

// DefaultUpdateHz is the snapshot cadence used when the configured rate is
// not positive.
const DefaultUpdateHz = 20.0

// maxUpdateHz is the hard ceiling regardless of configuration.
const maxUpdateHz = 60.0

// Server accepts WebSocket connections and pushes a JSON snapshot to every
// connected client at a fixed cadence. All mutators (UpdateOutSim,
// UpdateMCI, SetFocusPLID, UpdateTrackContext, UpdatePlayerLap) are safe
// to call from the orchestrator's frame-loop goroutine while the
// broadcast loop runs concurrently.
type Server struct {
	Logger zerolog.Logger

	host     string
	port     int
	updateHz float64

	listener net.Listener
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu          sync.Mutex
	clients     map[net.Conn]xid.ID
	frame       *outsim.Frame
	cars        []CarSnapshot
	focusPLID   *uint8
	track, car  string
	status      *session.Status
	radar       []session.RadarTarget
}

// NewServer builds a Server bound to host:port. updateHz is clamped to
// (0, maxUpdateHz]; a non-positive value falls back to DefaultUpdateHz.
func NewServer(host string, port int, updateHz float64, logger zerolog.Logger) *Server {
	if updateHz <= 0 {
		updateHz = DefaultUpdateHz
	}
	if updateHz > maxUpdateHz {
		updateHz = maxUpdateHz
	}
	return &Server{
		Logger:   logger,
		host:     host,
		port:     port,
		updateHz: updateHz,
		clients:  make(map[net.Conn]xid.ID),
	}
}

// Start binds the listener and launches the accept and broadcast loops.
// It returns once the listener is bound; both loops keep running until
// Stop is called.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.acceptLoop()
	go s.broadcastLoop()

	s.Logger.Info().Msgf("broadcast: listening on %s", addr)
	return nil
}

// Stop closes the listener, evicts every client, and waits up to 5
// seconds for the broadcast loop to exit.
func (s *Server) Stop() {
	if s.listener == nil {
		return
	}
	close(s.stopCh)
	s.listener.Close()

	s.mu.Lock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
	s.mu.Unlock()

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		s.Logger.Warn().Msg("broadcast: timed out waiting for broadcast loop to stop")
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.Logger.Warn().Msgf("broadcast: accept failed: %v", err)
				return
			}
		}
		go s.handleClient(conn)
	}
}

func (s *Server) handleClient(conn net.Conn) {
	if err := handshake(conn); err != nil {
		s.Logger.Debug().Msgf("broadcast: handshake failed: %v", err)
		conn.Close()
		return
	}
	id := xid.New()
	s.mu.Lock()
	s.clients[conn] = id
	s.mu.Unlock()
	s.Logger.Debug().Str("client", id.String()).Msgf("broadcast: connected from %s", conn.RemoteAddr())
}

func (s *Server) broadcastLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.updateHz))
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.publish()
		}
	}
}

func (s *Server) publish() {
	snapshot, ok := s.buildSnapshot()
	if !ok {
		return
	}
	payload, err := marshalSnapshot(snapshot)
	if err != nil {
		s.Logger.Warn().Msgf("broadcast: failed to marshal snapshot: %v", err)
		return
	}
	frame := encodeTextFrame(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	for c, id := range s.clients {
		c.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := c.Write(frame); err != nil {
			s.Logger.Debug().Str("client", id.String()).Msgf("broadcast: dropping %s: %v", c.RemoteAddr(), err)
			c.Close()
			delete(s.clients, c)
		}
	}
}

// buildSnapshot assembles the current state under the lock. It returns
// ok=false when there is nothing worth sending yet (no OutSim frame and
// no car list).
func (s *Server) buildSnapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame == nil && len(s.cars) == 0 {
		return Snapshot{}, false
	}

	snap := Snapshot{
		Timestamp: time.Now().UnixMilli(),
		Track:     s.track,
		Car:       s.car,
		Cars:      s.cars,
	}
	if s.frame != nil {
		out := buildOutSimSnapshot(*s.frame)
		snap.OutSim = &out
		player := buildPlayerSnapshot(*s.frame, s.focusPLID, s.status, s.radar)
		snap.Player = &player
		snap.RadarTargets = player.RadarTargets
	}
	if s.focusPLID != nil {
		for i := range s.cars {
			if s.cars[i].PLID == *s.focusPLID {
				snap.FocusedCar = &s.cars[i]
				break
			}
		}
	}
	return snap, true
}

// UpdateOutSim records the latest OutSim frame for the next publish tick.
func (s *Server) UpdateOutSim(f outsim.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = &f
}

// UpdateMCI records the latest decoded car list, scaled into metres.
func (s *Server) UpdateMCI(cars []CarSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cars = cars
}

// SetFocusPLID updates which car is reported as focused_car/player. A nil
// plid clears the focus.
func (s *Server) SetFocusPLID(plid *uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focusPLID = plid
}

// UpdateTrackContext records the current track/car short names.
func (s *Server) UpdateTrackContext(track, car string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = track
	s.car = car
}

// UpdatePlayerLap records the session engine's latest derived status and
// radar contacts, both folded into the player object on the next tick.
func (s *Server) UpdatePlayerLap(status session.Status, radar []session.RadarTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &status
	s.radar = radar
}

