package device

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultPort is the adb TCP/IP port.
const DefaultPort = "5555"

// ConnectionResult reports the outcome of a connect or disconnect.
// Message is never empty.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Info is one entry of "adb devices".
type Info struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Remote reports whether the device is attached over TCP/IP.
func (i Info) Remote() bool { return strings.Contains(i.ID, ":") }

// Manager connects and disconnects remote devices and remembers which
// addresses it has connected.
type Manager struct {
	runner Runner

	mu        sync.Mutex
	connected map[string]struct{}
}

// NewManager returns a manager with an empty registry.
func NewManager(r Runner) *Manager {
	return &Manager{runner: r, connected: make(map[string]struct{})}
}

// NormalizeAddress validates "host[:port]" and fills in the default port.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	if strings.ContainsAny(address, " \t/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		// No port, or a bare IPv6 literal.
		host, port = strings.Trim(address, "[]"), DefaultPort
		if strings.Contains(host, ":") && net.ParseIP(host) == nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}
	if host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, address)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("%w: bad port in %q", ErrInvalidAddress, address)
	}
	return net.JoinHostPort(host, port), nil
}

// Connect attaches the device at address over TCP/IP. The error is non-nil
// only for malformed addresses; transport failures are reported through
// the result.
func (m *Manager) Connect(ctx context.Context, address string) (ConnectionResult, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return ConnectionResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connected[addr]; ok {
		return ConnectionResult{Success: true, Message: "already connected to " + addr}, nil
	}

	out, err := m.runner.Run(ctx, "connect", addr)
	text := strings.TrimSpace(string(out))
	if err != nil {
		return ConnectionResult{Success: false, Message: failureMessage("connect", addr, text, err)}, nil
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "failed"), strings.Contains(lower, "cannot"),
		strings.Contains(lower, "unable"), strings.Contains(lower, "refused"):
		return ConnectionResult{Success: false, Message: text}, nil
	case strings.Contains(lower, "connected to"):
		m.connected[addr] = struct{}{}
		return ConnectionResult{Success: true, Message: text}, nil
	default:
		return ConnectionResult{Success: false, Message: failureMessage("connect", addr, text, nil)}, nil
	}
}

// Disconnect detaches a device previously connected through this manager.
// Unknown addresses fail without touching the transport.
func (m *Manager) Disconnect(ctx context.Context, address string) (ConnectionResult, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return ConnectionResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connected[addr]; !ok {
		return ConnectionResult{Success: false, Message: addr + " is not connected"}, nil
	}

	out, err := m.runner.Run(ctx, "disconnect", addr)
	text := strings.TrimSpace(string(out))
	lower := strings.ToLower(text)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "no such device") {
		return ConnectionResult{Success: false, Message: failureMessage("disconnect", addr, text, err)}, nil
	}

	switch {
	case err != nil, strings.Contains(lower, "no such device"):
		// Already gone on the adb side.
		delete(m.connected, addr)
		return ConnectionResult{Success: true, Message: addr + " was already disconnected"}, nil
	case strings.Contains(lower, "error"):
		return ConnectionResult{Success: false, Message: text}, nil
	default:
		delete(m.connected, addr)
		if text == "" {
			text = "disconnected " + addr
		}
		return ConnectionResult{Success: true, Message: text}, nil
	}
}

// Connected returns the registered addresses, sorted.
func (m *Manager) Connected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.connected))
	for a := range m.connected {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// IsConnected reports whether address is registered.
func (m *Manager) IsConnected(address string) bool {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.connected[addr]
	return ok
}

// ListDevices runs "adb devices".
func (m *Manager) ListDevices(ctx context.Context) ([]Info, error) {
	out, err := m.runner.Run(ctx, "devices")
	if err != nil {
		return nil, &ConnectivityError{Op: "list devices", Err: err}
	}
	return parseDevices(string(out)), nil
}

// Sync registers remote devices adb already reports as online, so a fresh
// process can disconnect devices connected by an earlier one.
func (m *Manager) Sync(ctx context.Context) error {
	infos, err := m.ListDevices(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range infos {
		if info.Remote() && info.State == "device" {
			m.connected[info.ID] = struct{}{}
		}
	}
	return nil
}

func parseDevices(out string) []Info {
	var infos []Info
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		infos = append(infos, Info{ID: fields[0], State: fields[1]})
	}
	return infos
}

func failureMessage(op, addr, out string, err error) string {
	switch {
	case out != "" && err != nil:
		return fmt.Sprintf("%s %s failed: %s (%v)", op, addr, out, err)
	case out != "":
		return fmt.Sprintf("%s %s failed: %s", op, addr, out)
	case err != nil:
		return fmt.Sprintf("%s %s failed: %v", op, addr, err)
	default:
		return fmt.Sprintf("%s %s failed: no output from adb", op, addr)
	}
}
