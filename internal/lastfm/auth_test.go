package lastfm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLogin(t *testing.T) {
	var out bytes.Buffer
	var opened string

	user, key, err := Login(fakeAuth{token: "tok"}, strings.NewReader("\n"), &out, func(url string) error {
		opened = url
		return errors.New("no browser")
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user != "listener" || key != "key-tok" {
		t.Errorf("Login = (%q, %q), want (%q, %q)", user, key, "listener", "key-tok")
	}
	if opened != "https://example.test/auth?token=tok" {
		t.Errorf("opened %q", opened)
	}
	if !strings.Contains(out.String(), opened) {
		t.Errorf("auth URL not printed: %q", out.String())
	}
}

func TestLogin_EOFConfirms(t *testing.T) {
	_, key, err := Login(fakeAuth{token: "t"}, strings.NewReader(""), &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if key != "key-t" {
		t.Errorf("key = %q", key)
	}
}

func TestLogin_TokenError(t *testing.T) {
	_, _, err := Login(fakeAuth{err: errors.New("invalid api key")}, strings.NewReader("\n"), &bytes.Buffer{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestClient_RequiresSession(t *testing.T) {
	c := New("key", "secret")
	if c.IsAuthenticated() {
		t.Fatal("new client should not be authenticated")
	}
	if err := c.Scrobble(ScrobbleTrack{Artist: "A", Track: "T"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Scrobble err = %v, want ErrNotAuthenticated", err)
	}
	if err := c.UpdateNowPlaying(ScrobbleTrack{Artist: "A", Track: "T"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("UpdateNowPlaying err = %v, want ErrNotAuthenticated", err)
	}

	c.SetSessionKey("abc")
	if !c.IsAuthenticated() {
		t.Error("client with session key should be authenticated")
	}
}

func TestScrobbleTrackParams(t *testing.T) {
	track := ScrobbleTrack{Artist: "A", Track: "T", AlbumArtist: "A", Timestamp: started}

	p := track.params(false)
	if _, ok := p["timestamp"]; ok {
		t.Error("now playing should not carry a timestamp")
	}
	if _, ok := p["albumArtist"]; ok {
		t.Error("albumArtist equal to artist should be omitted")
	}

	p = track.params(true)
	if p["timestamp"] != started.Unix() {
		t.Errorf("timestamp = %v, want %d", p["timestamp"], started.Unix())
	}
}
