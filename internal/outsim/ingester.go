package outsim

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config carries the options recognized under the outsim.* key.
type Config struct {
	Port                 int
	AllowedSources       []string // IP addresses or CIDR ranges; empty entries ignored
	MaxPacketsPerSecond  float64  // 0 disables rate limiting
	UpdateHz             float64  // 0 means block indefinitely on recv
}

// Ingester owns the OutSim UDP socket: it filters by source, rate-limits,
// and decodes frames for the orchestrator's frame loop.
type Ingester struct {
	Logger zerolog.Logger

	conn        *net.UDPConn
	allowed     []*net.IPNet
	allowedIPs  []net.IP
	limiter     *rate.Limiter
	recvTimeout time.Duration
}

// NewIngester binds the UDP socket and validates the configured allow-list
// and rate. An empty (after trimming) AllowedSources list is a
// configuration error, not an empty-means-allow-all default.
func NewIngester(cfg Config, logger zerolog.Logger) (*Ingester, error) {
	nets, ips, err := parseAllowedSources(cfg.AllowedSources)
	if err != nil {
		return nil, err
	}

	addr := &net.UDPAddr{Port: cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("outsim: failed to bind UDP port %d: %w", cfg.Port, err)
	}

	var limiter *rate.Limiter
	if cfg.MaxPacketsPerSecond > 0 {
		burst := int(cfg.MaxPacketsPerSecond)
		if float64(burst) < cfg.MaxPacketsPerSecond {
			burst++
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxPacketsPerSecond), burst)
	} else if cfg.MaxPacketsPerSecond < 0 {
		conn.Close()
		return nil, fmt.Errorf("outsim: max_packets_per_second must be strictly positive, got %v", cfg.MaxPacketsPerSecond)
	}

	var recvTimeout time.Duration
	if cfg.UpdateHz > 0 {
		recvTimeout = time.Duration(float64(time.Second) / cfg.UpdateHz)
	}

	logger.Info().Msgf("outsim: listening on udp :%d", cfg.Port)
	return &Ingester{
		Logger:      logger,
		conn:        conn,
		allowed:     nets,
		allowedIPs:  ips,
		limiter:     limiter,
		recvTimeout: recvTimeout,
	}, nil
}

// parseAllowedSources trims and drops empty entries, then parses each
// remaining entry as a CIDR range or a bare IP address.
func parseAllowedSources(raw []string) ([]*net.IPNet, []net.IP, error) {
	var nets []*net.IPNet
	var ips []net.IP
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipnet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("outsim: invalid CIDR %q: %w", entry, err)
			}
			nets = append(nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, nil, fmt.Errorf("outsim: invalid source address %q", entry)
		}
		ips = append(ips, ip)
	}
	if len(nets) == 0 && len(ips) == 0 {
		return nil, nil, fmt.Errorf("outsim: allowed_sources is empty after trimming")
	}
	return nets, ips, nil
}

func (in *Ingester) sourceAllowed(addr *net.UDPAddr) bool {
	for _, ip := range in.allowedIPs {
		if ip.Equal(addr.IP) {
			return true
		}
	}
	for _, n := range in.allowed {
		if n.Contains(addr.IP) {
			return true
		}
	}
	return false
}

// Recv blocks (up to the configured update_hz timeout, if any) for the
// next datagram. It returns (frame, true, nil) on a successfully decoded
// frame, (zero, false, nil) on a benign timeout or a filtered/malformed
// packet, and a non-nil error only on a genuine socket failure that should
// end the frame loop.
func (in *Ingester) Recv() (Frame, bool, error) {
	if in.recvTimeout > 0 {
		in.conn.SetReadDeadline(time.Now().Add(in.recvTimeout))
	} else {
		in.conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, 1024)
	n, src, err := in.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Frame{}, false, nil
		}
		return Frame{}, false, fmt.Errorf("outsim: recv failed: %w", err)
	}

	if !in.sourceAllowed(src) {
		in.Logger.Warn().Msgf("outsim: dropping packet from disallowed source %s", src.IP)
		return Frame{}, false, nil
	}

	if in.limiter != nil && !in.limiter.Allow() {
		in.Logger.Warn().Msgf("outsim: dropping packet from %s, rate limit exceeded", src.IP)
		return Frame{}, false, nil
	}

	frame, err := DecodeFrame(buf[:n])
	if err != nil {
		in.Logger.Warn().Msgf("outsim: %v", err)
		return Frame{}, false, nil
	}
	return frame, true, nil
}

// Close releases the UDP socket.
func (in *Ingester) Close() error {
	return in.conn.Close()
}
