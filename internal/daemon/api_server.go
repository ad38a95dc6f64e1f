package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"stave/internal/api"
	"stave/internal/config"
	"stave/internal/logging"
	"stave/internal/render"
	"stave/internal/services"
	"stave/internal/toolbar"
	"stave/internal/view"
)

// maxRequestBytes caps JSON request bodies; note text is the largest payload.
const maxRequestBytes = 8 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           requestIDMiddleware(authMiddleware(cfg.Paths.APIToken, srv.routes())),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/render", s.handleRender)
	mux.HandleFunc("POST /api/documents", s.handleDocument)
	mux.HandleFunc("GET /api/mounts", s.handleMounts)
	mux.HandleFunc("GET /api/mounts/{mount...}", s.handleMount)
	mux.HandleFunc("DELETE /api/mounts/{mount...}", s.handleUnmount)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("POST /api/sessions/{id}/{action}", s.handleSessionAction)
	mux.HandleFunc("POST /api/sessions/{id}/page/{n}", s.handlePage)
	mux.HandleFunc("GET /api/sessions/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /api/playback", s.handlePlayback)
	mux.HandleFunc("GET /api/notices", s.handleNotices)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()).View())
}

func (s *apiServer) handleRender(w http.ResponseWriter, r *http.Request) {
	var req api.RenderRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.daemon.Render(r.Context(), req.Mount, req.Source)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeFailure(w, r, err)
			return
		}
		// The mount point shows the failure; report it with the mounted message.
		s.writeJSON(w, api.StatusCode(err), api.RenderResponse{Mount: req.Mount, Error: render.ErrorMessage(err)})
		return
	}
	s.writeJSON(w, http.StatusOK, api.RenderResponse{Mount: req.Mount, SessionID: id})
}

func (s *apiServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	var req api.DocumentRequest
	if !s.decode(w, r, &req) {
		return
	}
	results, err := s.daemon.RenderDocument(r.Context(), req.Note, req.Text)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromBlockResults(req.Note, results))
}

func (s *apiServer) handleMounts(w http.ResponseWriter, _ *http.Request) {
	mounts := s.daemon.Mounts()
	out := make([]api.MountPoint, 0, len(mounts))
	for _, mp := range mounts {
		out = append(out, api.FromMountPoint(mp, false))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleMount(w http.ResponseWriter, r *http.Request) {
	mp, err := s.daemon.Mount(r.PathValue("mount"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := view.WriteHTML(w, mp); err != nil {
			s.log().Error("failed to write mount html", logging.Error(err))
		}
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromMountPoint(mp, r.URL.Query().Get("svg") != "0"))
}

func (s *apiServer) handleUnmount(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Unmount(r.Context(), r.PathValue("mount")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.daemon.Sessions(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	out := make([]api.Session, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.daemon.SessionView(sess))
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: out})
}

func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.daemon.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.SessionView(sess))
}

func (s *apiServer) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")
	ctx := r.Context()

	var err error
	switch action {
	case string(toolbar.ActionPlay):
		err = s.daemon.Play(ctx, id)
	case string(toolbar.ActionStop):
		err = s.daemon.StopPlayback(ctx, id)
	case string(toolbar.ActionOpen):
		err = s.daemon.Open(ctx, id)
	case "reload":
		err = s.daemon.Reload(ctx, id)
	default:
		s.writeError(w, http.StatusNotFound, "unknown action "+action)
		return
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{SessionID: id, Action: action, OK: true})
}

func (s *apiServer) handlePage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}
	if err := s.daemon.ShowPage(r.Context(), id, n); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{SessionID: id, Action: "page", OK: true, Message: strconv.Itoa(n)})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	file, err := s.daemon.Download(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func (s *apiServer) handlePlayback(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromPlayback(s.daemon.Playback()))
}

func (s *apiServer) handleNotices(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.writeJSON(w, http.StatusOK, api.NoticeListResponse{Notices: api.FromNotices(s.daemon.Notices(limit))})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := io.LimitReader(r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func wantsHTML(r *http.Request) bool {
	if r.URL.Query().Get("format") == "html" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeFailure answers with the status mapped from the error marker. Server
// side failures are logged with the request's correlation id.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := api.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.log()), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, api.NewError(err))
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
