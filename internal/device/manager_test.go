package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"192.168.1.5", "192.168.1.5:5555", false},
		{" 192.168.1.5:5037 ", "192.168.1.5:5037", false},
		{"phone.lan", "phone.lan:5555", false},
		{"::1", "[::1]:5555", false},
		{"[::1]:7000", "[::1]:7000", false},
		{"", "", true},
		{"   ", "", true},
		{":5555", "", true},
		{"host:abc", "", true},
		{"host:70000", "", true},
		{"a b", "", true},
		{"a:b:c", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeAddress(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("NormalizeAddress(%q): expected ErrInvalidAddress, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestManager_ConnectTwiceIsIdempotent(t *testing.T) {
	r := newScriptedRunner().on("connect", "connected to 192.168.1.5:5555", nil)
	m := NewManager(r)
	ctx := context.Background()

	res, err := m.Connect(ctx, "192.168.1.5")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = m.Connect(ctx, "192.168.1.5:5555")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Message)

	assert.Equal(t, []string{"192.168.1.5:5555"}, m.Connected())
	assert.Equal(t, 1, r.count("connect"), "second connect must not reach adb")
}

func TestManager_ConnectFailures(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
	}{
		{"refused", "failed to connect to '10.0.0.9:5555': Connection refused", nil},
		{"unreachable", "cannot connect to 10.0.0.9:5555: No route to host", nil},
		{"adb missing", "", errors.New(`exec: "adb": executable file not found in $PATH`)},
		{"empty output", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(newScriptedRunner().on("connect", tt.out, tt.err))
			res, err := m.Connect(context.Background(), "10.0.0.9")
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Message)
			assert.Empty(t, m.Connected())
		})
	}
}

func TestManager_InvalidAddressIsError(t *testing.T) {
	r := newScriptedRunner()
	m := NewManager(r)
	_, err := m.Connect(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = m.Disconnect(context.Background(), "bad host")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Empty(t, r.Calls())
}

func TestManager_DisconnectUnknown(t *testing.T) {
	r := newScriptedRunner().on("connect", "connected to 10.0.0.1:5555", nil)
	m := NewManager(r)
	_, err := m.Connect(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	res, err := m.Disconnect(context.Background(), "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "10.0.0.2:5555 is not connected")
	assert.Equal(t, []string{"10.0.0.1:5555"}, m.Connected())
	assert.Zero(t, r.count("disconnect"))
}

func TestManager_Disconnect(t *testing.T) {
	r := newScriptedRunner().
		on("connect", "connected to 10.0.0.1:5555", nil).
		on("disconnect", "disconnected 10.0.0.1:5555", nil)
	m := NewManager(r)
	ctx := context.Background()

	_, err := m.Connect(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, m.IsConnected("10.0.0.1"))

	res, err := m.Disconnect(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, m.IsConnected("10.0.0.1"))
}

func TestManager_DisconnectAlreadyGone(t *testing.T) {
	r := newScriptedRunner().
		on("connect", "connected to 10.0.0.1:5555", nil).
		on("disconnect", "error: no such device '10.0.0.1:5555'", nil)
	m := NewManager(r)
	ctx := context.Background()
	_, _ = m.Connect(ctx, "10.0.0.1")

	res, err := m.Disconnect(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, m.Connected())
}

func TestManager_IndependentRegistries(t *testing.T) {
	r := newScriptedRunner().on("connect", "connected to 10.0.0.1:5555", nil)
	a, b := NewManager(r), NewManager(r)
	_, _ = a.Connect(context.Background(), "10.0.0.1")
	assert.True(t, a.IsConnected("10.0.0.1"))
	assert.False(t, b.IsConnected("10.0.0.1"))
}

func TestManager_ListDevicesAndSync(t *testing.T) {
	out := "List of devices attached\n" +
		"emulator-5554\tdevice\n" +
		"192.168.1.5:5555\tdevice\n" +
		"192.168.1.6:5555\toffline\n\n"
	m := NewManager(newScriptedRunner().on("devices", out, nil))

	infos, err := m.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, Info{ID: "emulator-5554", State: "device"}, infos[0])
	assert.False(t, infos[0].Remote())
	assert.True(t, infos[1].Remote())

	require.NoError(t, m.Sync(context.Background()))
	assert.Equal(t, []string{"192.168.1.5:5555"}, m.Connected())
}
