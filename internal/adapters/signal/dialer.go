package signal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dkeye/consult/internal/app/signaling"
	"github.com/dkeye/consult/internal/domain"
	"github.com/gorilla/websocket"
)

// Dialers builds one websocket dialer per room and local participant.
type Dialers struct {
	BaseURL      string
	WriteTimeout time.Duration
	Header       http.Header
}

func (d Dialers) DialerFor(room string, _ domain.ParticipantID) signaling.Dialer {
	return &Dialer{URL: d.roomURL(room), WriteTimeout: d.WriteTimeout, Header: d.Header}
}

func (d Dialers) roomURL(room string) string {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return d.BaseURL
	}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()
	return u.String()
}

type Dialer struct {
	URL          string
	WriteTimeout time.Duration
	Header       http.Header
}

func (d *Dialer) Dial(ctx context.Context) (signaling.Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("signal: dial %s: %w", d.URL, err)
	}
	timeout := d.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Conn{ws: ws, writeTimeout: timeout}, nil
}
