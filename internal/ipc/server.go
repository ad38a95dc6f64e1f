package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"stave/internal/api"
	"stave/internal/daemon"
	"stave/internal/logging"
)

// ServerOption customizes the IPC server.
type ServerOption func(*service)

// WithShutdown registers the function the Stop method calls after stopping
// the daemon, typically the cancel of the process context.
func WithShutdown(fn func()) ServerOption {
	return func(s *service) {
		s.shutdown = fn
	}
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	for _, opt := range opts {
		opt(srv)
	}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = s.listener.Close()
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun stave daemon stop"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	if s.shutdown != nil {
		// Let the reply go out before the process context ends.
		go s.shutdown()
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx).View()
	return nil
}

func (s *service) Render(req RenderRequest, resp *RenderResponse) error {
	resp.Mount = req.Mount
	id, err := s.daemon.Render(s.ctx, req.Mount, req.Source)
	if err != nil {
		return err
	}
	resp.SessionID = id
	return nil
}

func (s *service) RenderDocument(req DocumentRequest, resp *DocumentResponse) error {
	results, err := s.daemon.RenderDocument(s.ctx, req.Note, req.Text)
	if err != nil {
		return err
	}
	*resp = api.FromBlockResults(req.Note, results)
	return nil
}

func (s *service) Sessions(_ SessionListRequest, resp *SessionListResponse) error {
	sessions, err := s.daemon.Sessions(s.ctx)
	if err != nil {
		return err
	}
	resp.Sessions = make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, s.daemon.SessionView(sess))
	}
	return nil
}

func (s *service) Session(req SessionRequest, resp *SessionResponse) error {
	sess, err := s.daemon.Session(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Session = s.daemon.SessionView(sess)
	return nil
}

func (s *service) Play(req SessionRequest, resp *ActionResponse) error {
	return s.action(req.ID, "play", s.daemon.Play, resp)
}

func (s *service) StopPlayback(req SessionRequest, resp *ActionResponse) error {
	return s.action(req.ID, "stop", s.daemon.StopPlayback, resp)
}

func (s *service) Open(req SessionRequest, resp *ActionResponse) error {
	return s.action(req.ID, "open", s.daemon.Open, resp)
}

func (s *service) Reload(req SessionRequest, resp *ActionResponse) error {
	return s.action(req.ID, "reload", s.daemon.Reload, resp)
}

func (s *service) Page(req PageRequest, resp *ActionResponse) error {
	return s.action(req.ID, "page", func(ctx context.Context, id string) error {
		return s.daemon.ShowPage(ctx, id, req.Page)
	}, resp)
}

func (s *service) Download(req SessionRequest, resp *DownloadResponse) error {
	file, err := s.daemon.Download(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Name = file.Name
	resp.ContentType = file.ContentType
	resp.Data = file.Data
	return nil
}

func (s *service) Mount(req MountRequest, resp *MountResponse) error {
	mp, err := s.daemon.Mount(req.Name)
	if err != nil {
		return err
	}
	resp.Mount = api.FromMountPoint(mp, req.IncludeSVG)
	return nil
}

func (s *service) Unmount(req MountRequest, resp *UnmountResponse) error {
	if err := s.daemon.Unmount(s.ctx, req.Name); err != nil {
		return err
	}
	resp.Unmounted = true
	return nil
}

func (s *service) Playback(_ PlaybackRequest, resp *PlaybackResponse) error {
	*resp = api.FromPlayback(s.daemon.Playback())
	return nil
}

func (s *service) Notices(req NoticesRequest, resp *NoticesResponse) error {
	resp.Notices = api.FromNotices(s.daemon.Notices(req.Limit))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) action(id, name string, fn func(context.Context, string) error, resp *ActionResponse) error {
	resp.SessionID = id
	resp.Action = name
	if err := fn(s.ctx, id); err != nil {
		return err
	}
	resp.OK = true
	return nil
}
