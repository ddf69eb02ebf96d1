package player

import (
	"errors"
	"io"
	"net"
	"strconv"
	"syscall"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/llehouerou/mpsd/internal/errmsg"
)

// ErrNotConnected is returned by requests made without an open session.
var ErrNotConnected = errors.New("not connected")

// session is the subset of an MPD client the adapter needs.
type session interface {
	Status() (mpd.Attrs, error)
	CurrentSong() (mpd.Attrs, []string, error)
	Password(password string) error
	Close() error
}

type dialFunc func(network, addr string) (session, error)

// MPD is an Adapter for a Music Player Daemon reachable over TCP.
type MPD struct {
	addr     string
	password string
	dial     dialFunc
	conn     session
}

var _ Adapter = (*MPD)(nil)

// NewMPD creates an adapter for host:port. An empty password disables
// authentication.
func NewMPD(host string, port int, password string) *MPD {
	return &MPD{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		password: password,
		dial:     dialMPD,
	}
}

// Addr returns the host:port the adapter dials.
func (m *MPD) Addr() string {
	return m.addr
}

// Connect opens a new session, replacing any previous one.
func (m *MPD) Connect() error {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	conn, err := m.dial("tcp", m.addr)
	if err != nil {
		return errmsg.Connection(errmsg.OpConnect, err)
	}
	m.conn = conn
	return nil
}

// Authenticate sends the configured password. It is a no-op without one.
func (m *MPD) Authenticate() error {
	if m.password == "" {
		return nil
	}
	if m.conn == nil {
		return errmsg.Connection(errmsg.OpAuthenticate, ErrNotConnected)
	}
	if err := m.conn.Password(m.password); err != nil {
		return classify(errmsg.OpAuthenticate, err)
	}
	return nil
}

// Status returns the current playback state and elapsed time.
func (m *MPD) Status() (Status, error) {
	if m.conn == nil {
		return Status{}, errmsg.Connection(errmsg.OpStatus, ErrNotConnected)
	}
	attrs, err := m.conn.Status()
	if err != nil {
		return Status{}, classify(errmsg.OpStatus, err)
	}
	status, err := parseStatus(attrs)
	if err != nil {
		return Status{}, errmsg.Command(errmsg.OpStatus, err)
	}
	return status, nil
}

// CurrentSong returns the metadata of the current song, or an empty Song
// when nothing is loaded.
func (m *MPD) CurrentSong() (Song, error) {
	if m.conn == nil {
		return Song{}, errmsg.Connection(errmsg.OpCurrentSong, ErrNotConnected)
	}
	attrs, genres, err := m.conn.CurrentSong()
	if err != nil {
		return Song{}, classify(errmsg.OpCurrentSong, err)
	}
	return parseSong(attrs, genres), nil
}

// Disconnect closes the session. It is safe to call when not connected.
func (m *MPD) Disconnect() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	if err != nil && !isConnectionError(err) {
		return errmsg.Command(errmsg.OpDisconnect, err)
	}
	return nil
}

func classify(op errmsg.Op, err error) error {
	if isConnectionError(err) {
		return errmsg.Connection(op, err)
	}
	return errmsg.Command(op, err)
}

func isConnectionError(err error) bool {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, ErrNotConnected):
		return true
	}
	return false
}
