package insim

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// ReadBufferSize is the per-read scratch buffer handed to the TCP socket.
// It bounds a single syscall's worth of bytes, not the framer's own
// accumulation buffer.
const ReadBufferSize = 8 * 1024

// Client owns the InSim TCP connection: it performs the handshake, frames
// and decodes inbound bytes into Events, and exposes a write path for
// outbound packets. It mirrors the broadcasting client's connect/listen
// shape but trades blocking callback dispatch for a non-blocking Poll, to
// fit a single orchestrator frame loop rather than its own thread.
type Client struct {
	Logger zerolog.Logger

	// sessionID correlates the log lines Connect emits for one connection
	// attempt, since the orchestrator may reconnect after a transport error.
	sessionID xid.ID

	host          string
	port          int
	adminPassword string
	intervalMs    uint16

	conn    net.Conn
	framer  *Framer
	decoder *Decoder

	connected bool
}

// NewClient constructs a Client for the given host/port. adminPassword and
// intervalMs are used to build the ISI handshake packet on Connect.
func NewClient(host string, port int, adminPassword string, intervalMs uint16, logger zerolog.Logger) *Client {
	return &Client{
		Logger:        logger,
		host:          host,
		port:          port,
		adminPassword: adminPassword,
		intervalMs:    intervalMs,
		framer:        NewFramer(DefaultBufferLimit, logger),
		decoder:       NewDecoder(),
	}
}

// Connect dials the TCP control port and sends the ISI handshake. The
// connection's read deadline is managed by Poll, not here. A fresh
// session id is minted for this attempt and attached to the log lines
// Connect emits; Poll, the write path and Close log without it.
func (c *Client) Connect() error {
	c.sessionID = xid.New()
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	c.Logger.Info().Str("session", c.sessionID.String()).Msgf("insim: connecting to %s", addr)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		c.Logger.Error().Str("session", c.sessionID.String()).Msgf("insim: dial %s failed: %v", addr, err)
		return err
	}
	c.conn = conn

	isi := MarshalInitialise(c.adminPassword, c.intervalMs)
	if _, err := c.conn.Write(isi); err != nil {
		c.Logger.Error().Str("session", c.sessionID.String()).Msgf("insim: failed to write ISI handshake: %v", err)
		c.conn.Close()
		c.conn = nil
		return err
	}

	c.connected = true
	c.Logger.Info().Str("session", c.sessionID.String()).Msgf("insim: connected, handshake sent")
	return nil
}

// Connected reports whether Connect succeeded and Close has not been
// called since. The HUD controller consults this to skip button draws.
func (c *Client) Connected() bool {
	return c.connected
}

// Poll performs one non-blocking-ish read (bounded by timeout) and returns
// every Event decoded from whatever bytes were available. A timeout with
// no data is not an error: it is the mechanism by which the orchestrator's
// frame loop keeps servicing OutSim and the broadcaster even when InSim is
// quiet. Any other read error is transport failure and is returned to the
// caller, who is expected to shut down.
func (c *Client) Poll(timeout time.Duration) ([]Event, error) {
	if !c.connected {
		return nil, nil
	}

	c.conn.SetReadDeadline(time.Now().Add(timeout))
	var buf [ReadBufferSize]byte
	n, err := c.conn.Read(buf[:])
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		c.Logger.Error().Msgf("insim: read failed: %v", err)
		return nil, err
	}

	packets := c.framer.Append(buf[:n])
	var events []Event
	for _, pkt := range packets {
		if err := Validate(pkt.Raw); err != nil {
			c.Logger.Warn().Msgf("insim: rejecting packet type %d: %v", pkt.Type, err)
			continue
		}
		decoded, err := c.decoder.Decode(pkt)
		if err != nil {
			c.Logger.Warn().Msgf("insim: decode failed for type %d: %v", pkt.Type, err)
			continue
		}
		events = append(events, decoded...)
	}
	return events, nil
}

// SendMessage writes an IS_MST chat-style command to the simulator.
func (c *Client) SendMessage(command string) error {
	return c.write(MarshalMessage(command))
}

// SendButton draws or updates a single button described by spec.
func (c *Client) SendButton(spec ButtonSpec) error {
	return c.write(MarshalButton(spec))
}

// DeleteButton removes a previously drawn button.
func (c *Client) DeleteButton(buttonID uint8) error {
	return c.write(MarshalButtonDelete(buttonID))
}

func (c *Client) write(raw []byte) error {
	if !c.connected {
		c.Logger.Debug().Msg("insim: write skipped, not connected")
		return nil
	}
	n, err := c.conn.Write(raw)
	if err != nil {
		c.Logger.Error().Msgf("insim: write failed: %v", err)
		return err
	}
	if n != len(raw) {
		c.Logger.Error().Msgf("insim: short write, wrote %d of %d bytes", n, len(raw))
		return fmt.Errorf("insim: short write")
	}
	return nil
}

// Close tears down the TCP connection. It is idempotent.
func (c *Client) Close() {
	if !c.connected {
		return
	}
	c.connected = false
	if err := c.conn.Close(); err != nil {
		c.Logger.Warn().Msgf("insim: error while closing: %v", err)
	}
	c.conn = nil
	c.Logger.Info().Msg("insim: disconnected")
}
