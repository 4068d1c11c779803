/*
Copyright © 2025 esmdev contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.esmdev.dev/server/cache"
	"go.esmdev.dev/server/config"
	"go.esmdev.dev/server/graph"
	"go.esmdev.dev/server/hmr"
	"go.esmdev.dev/server/internal/platform"
	"go.esmdev.dev/server/logger"
	"go.esmdev.dev/server/resolve"
	"go.esmdev.dev/server/rewrite"
	"go.esmdev.dev/server/watch"
)

// Server owns the HTTP listener, the shared ServerContext, and the
// watcher->cache->graph->HMR wiring, adapted from serve/server.go's
// NewServerWithConfig/Start/Close lifecycle (pre-bound listener so port
// conflicts surface before Start returns success, goroutine-served mux,
// graceful shutdown with a pre-close HMR broadcast).
type Server struct {
	ctx    *ServerContext
	plugin []Plugin

	mu       sync.Mutex
	running  bool
	listener net.Listener
	http     *http.Server
}

// New constructs a Server wired against cfg, with plugins appended after
// the built-in stub roster (DefaultPlugins). log may be nil, in which case
// a PtermLogger is created.
func New(cfg *config.ServerConfig, log logger.Logger, plugins ...Plugin) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := resolve.ValidateURLRewrites(cfg.URLRewrites); err != nil {
		return nil, &ConfigErr{Msg: "invalid urlRewrites", Err: err}
	}
	if log == nil {
		log = logger.NewPtermLogger(cfg.Verbose)
	}

	resolver := resolve.New(cfg.Root, cfg.URLRewrites, platform.NewOSFileSystem())
	g := graph.New()
	fileCache := cache.NewFileCache(cfg.FileCacheSize)
	rewriteCache := cache.NewRewriteCache(cfg.RewriteCacheSize)
	rewriter := rewrite.NewEngine(resolver, g, rewriteCache, cfg.ClientPublicPath, cfg.EnvPublicPath, log)

	hub := hmr.NewHub(log)
	propagator := hmr.NewPropagator(g, hub)

	ctx := &ServerContext{
		Root:         cfg.Root,
		Port:         cfg.Port,
		Config:       cfg,
		FileCache:    fileCache,
		RewriteCache: rewriteCache,
		Resolver:     resolver,
		Graph:        g,
		Rewriter:     rewriter,
		Hub:          hub,
		Propagator:   propagator,
		Logger:       log,
	}

	if pl, ok := log.(*logger.PtermLogger); ok {
		pl.SetBroadcaster(hub)
	}

	s := &Server{ctx: ctx, plugin: append(DefaultPlugins(), plugins...)}
	return s, nil
}

func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	reg := newRegistry(mux)

	mux.HandleFunc("/__hmr", s.ctx.Hub.ServeHTTP)
	mux.HandleFunc(s.ctx.Config.ClientPublicPath, s.serveClientRuntime)
	mux.HandleFunc(s.ctx.Config.EnvPublicPath, s.serveEnvModule)
	mux.HandleFunc("/", s.serveModule)

	for _, p := range s.plugin {
		p(s.ctx, reg)
	}

	var handler http.Handler = mux
	handler = htmlInjectMiddleware(s.ctx.Config.ClientPublicPath)(handler)
	for i := len(reg.middlewares) - 1; i >= 0; i-- {
		handler = reg.middlewares[i](handler)
	}
	handler = corsMiddleware(handler)
	handler = loggingMiddleware(s.ctx.Logger)(handler)
	return handler
}

// Start binds the listener, launches the watcher pipeline, and serves in
// a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.ctx.Config.Host, s.ctx.Config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.listener = listener

	watchDir := s.ctx.Config.WatchDir
	if watchDir == "" {
		watchDir = s.ctx.Config.Root
	}
	w, err := watch.New(watchDir, s.ctx.Config.DebounceWindow, s.ctx.Config.IgnoreGlobs, s.ctx.Logger)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Watch(watchDir); err != nil {
		_ = w.Close()
		_ = listener.Close()
		return fmt.Errorf("failed to watch %s: %w", watchDir, err)
	}
	s.ctx.Watcher = w
	go s.pumpWatchEvents(w)

	s.http = &http.Server{Handler: s.buildHandler()}
	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.ctx.Logger.Error("server error: %v", err)
		}
	}()

	s.running = true
	s.ctx.Logger.Info("serving %s on http://%s", s.ctx.Config.Root, addr)
	return nil
}

// pumpWatchEvents is C5's wiring to C1/C3/C4/C6: a change evicts the file
// cache entry, busts the rewrite cache by publicPath prefix, and hands the
// cleanId to the HMR propagator; an unlink additionally clears the
// module's outgoing graph edges so a dangling importer gets a clean 404
// rather than stale rewritten imports.
func (s *Server) pumpWatchEvents(w *watch.Watcher) {
	for ev := range w.Events() {
		publicPath := s.ctx.Resolver.FileToRequest(ev.Path)
		cleanId := resolve.CleanURL(publicPath)
		ts := time.Now().UnixMilli()

		s.ctx.FileCache.Invalidate(ev.Path)
		s.ctx.RewriteCache.InvalidatePrefix(cleanId)

		if ev.Kind == watch.EventUnlink {
			s.ctx.Graph.ClearImportees(cleanId)
		}

		msg := s.ctx.Propagator.Propagate(cleanId, ts)
		s.ctx.Logger.Debug("propagated %s change as %s", cleanId, msg.Type)
	}
}

// Close gracefully shuts the server down: HMR clients are warned first,
// then the HTTP server and watcher are stopped, mirroring serve/server.go's
// Close (pre-shutdown broadcast, bounded context, listener cleanup via
// http.Server.Shutdown).
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	s.ctx.Hub.BroadcastShutdown()
	time.Sleep(100 * time.Millisecond)
	s.ctx.Hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			return err
		}
	}
	if s.ctx.Watcher != nil {
		if err := s.ctx.Watcher.Close(); err != nil {
			s.ctx.Logger.Error("close watcher: %v", err)
		}
	}

	s.running = false
	s.ctx.Logger.Info("server stopped")
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) Context() *ServerContext { return s.ctx }
