package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[R any](c *Client, method string, req any) (*R, error) {
	var resp R
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop and exit.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Render renders block source on a mount point. Render failures come back
// as errors; the mount point shows the message.
func (c *Client) Render(mount, source string) (*RenderResponse, error) {
	return call[RenderResponse](c, "Render", RenderRequest{Mount: mount, Source: source})
}

// RenderDocument renders every score block of a note.
func (c *Client) RenderDocument(note, text string) (*DocumentResponse, error) {
	return call[DocumentResponse](c, "RenderDocument", DocumentRequest{Note: note, Text: text})
}

// Sessions lists sessions.
func (c *Client) Sessions() (*SessionListResponse, error) {
	return call[SessionListResponse](c, "Sessions", SessionListRequest{})
}

// Session describes one session.
func (c *Client) Session(id string) (*SessionResponse, error) {
	return call[SessionResponse](c, "Session", SessionRequest{ID: id})
}

// Play starts playback of a session.
func (c *Client) Play(id string) (*ActionResponse, error) {
	return call[ActionResponse](c, "Play", SessionRequest{ID: id})
}

// StopPlayback halts playback of a session.
func (c *Client) StopPlayback(id string) (*ActionResponse, error) {
	return call[ActionResponse](c, "StopPlayback", SessionRequest{ID: id})
}

// Open opens a session's source externally.
func (c *Client) Open(id string) (*ActionResponse, error) {
	return call[ActionResponse](c, "Open", SessionRequest{ID: id})
}

// Reload re-renders a session's current page.
func (c *Client) Reload(id string) (*ActionResponse, error) {
	return call[ActionResponse](c, "Reload", SessionRequest{ID: id})
}

// Page switches a session to page n.
func (c *Client) Page(id string, n int) (*ActionResponse, error) {
	return call[ActionResponse](c, "Page", PageRequest{ID: id, Page: n})
}

// Download fetches a session's current SVG.
func (c *Client) Download(id string) (*DownloadResponse, error) {
	return call[DownloadResponse](c, "Download", SessionRequest{ID: id})
}

// Mount describes one mount point.
func (c *Client) Mount(name string, includeSVG bool) (*MountResponse, error) {
	return call[MountResponse](c, "Mount", MountRequest{Name: name, IncludeSVG: includeSVG})
}

// Unmount removes a mount point.
func (c *Client) Unmount(name string) (*UnmountResponse, error) {
	return call[UnmountResponse](c, "Unmount", MountRequest{Name: name})
}

// Playback retrieves the synchronizer state.
func (c *Client) Playback() (*PlaybackResponse, error) {
	return call[PlaybackResponse](c, "Playback", PlaybackRequest{})
}

// Notices retrieves recent notices.
func (c *Client) Notices(limit int) (*NoticesResponse, error) {
	return call[NoticesResponse](c, "Notices", NoticesRequest{Limit: limit})
}

// TestNotification sends a test notice.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
