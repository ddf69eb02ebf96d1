package player

import (
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

const ioTimeout = 10 * time.Second

// conn is a session speaking the MPD line protocol directly. gompd's
// client folds repeated keys into one Attrs value and keeps its connection
// private, so responses carrying several Genre lines are read here.
type conn struct {
	nc   net.Conn
	text *textproto.Conn
}

func dialMPD(network, addr string) (session, error) {
	nc, err := net.DialTimeout(network, addr, ioTimeout)
	if err != nil {
		return nil, err
	}
	c := &conn{nc: nc, text: textproto.NewConn(nc)}
	if err := nc.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
		_ = c.text.Close()
		return nil, err
	}
	line, err := c.text.ReadLine()
	if err != nil {
		_ = c.text.Close()
		return nil, err
	}
	if !strings.HasPrefix(line, "OK MPD ") {
		_ = c.text.Close()
		return nil, textproto.ProtocolError("no greeting: " + line)
	}
	return c, nil
}

type field struct {
	key, value string
}

// request sends one command and reads its response up to OK. An ACK line
// is returned as an mpd.Error.
func (c *conn) request(command string) ([]field, error) {
	if err := c.nc.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
		return nil, err
	}
	if _, err := c.text.W.WriteString(command + "\n"); err != nil {
		return nil, err
	}
	if err := c.text.W.Flush(); err != nil {
		return nil, err
	}

	var fields []field
	for {
		line, err := c.text.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == "OK" {
			return fields, nil
		}
		if strings.HasPrefix(line, "ACK ") {
			return nil, parseAck(line)
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, textproto.ProtocolError("can't parse line: " + line)
		}
		fields = append(fields, field{key, value})
	}
}

func (c *conn) Status() (mpd.Attrs, error) {
	fields, err := c.request("status")
	if err != nil {
		return nil, err
	}
	attrs := make(mpd.Attrs, len(fields))
	for _, f := range fields {
		attrs[f.key] = f.value
	}
	return attrs, nil
}

// CurrentSong returns the song attributes and every Genre value in the
// order the server sent them.
func (c *conn) CurrentSong() (mpd.Attrs, []string, error) {
	fields, err := c.request("currentsong")
	if err != nil {
		return nil, nil, err
	}
	attrs := make(mpd.Attrs, len(fields))
	var genres []string
	for _, f := range fields {
		if f.key == "Genre" {
			genres = append(genres, f.value)
			if _, ok := attrs[f.key]; ok {
				continue
			}
		}
		attrs[f.key] = f.value
	}
	return attrs, genres, nil
}

func (c *conn) Password(password string) error {
	_, err := c.request("password " + quote(password))
	return err
}

func (c *conn) Close() error {
	_ = c.nc.SetDeadline(time.Now().Add(ioTimeout))
	_, _ = c.text.W.WriteString("close\n")
	_ = c.text.W.Flush()
	return c.text.Close()
}

// parseAck decodes "ACK [code@index] {command} message".
func parseAck(line string) error {
	rest := strings.TrimPrefix(line, "ACK ")
	var e mpd.Error
	if head, tail, ok := strings.Cut(rest, "] "); ok && strings.HasPrefix(head, "[") {
		code, index, _ := strings.Cut(head[1:], "@")
		n, _ := strconv.Atoi(code)
		e.Code = mpd.ErrorCode(n)
		e.CommandListIndex, _ = strconv.Atoi(index)
		rest = tail
	}
	if head, tail, ok := strings.Cut(rest, "} "); ok && strings.HasPrefix(head, "{") {
		e.CommandName = head[1:]
		rest = tail
	}
	e.Message = strings.TrimSpace(rest)
	return e
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
