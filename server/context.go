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

// Package server is the C7 plugin pipeline: an ordered middleware chain
// over a shared ServerContext, adapted from serve/server.go's
// setupMiddleware/serveMainHandler idiom and middleware.Chain's
// post-processing convention.
package server

import (
	"os"

	"go.esmdev.dev/server/cache"
	"go.esmdev.dev/server/config"
	"go.esmdev.dev/server/graph"
	"go.esmdev.dev/server/hmr"
	"go.esmdev.dev/server/logger"
	"go.esmdev.dev/server/resolve"
	"go.esmdev.dev/server/rewrite"
	"go.esmdev.dev/server/watch"
)

// ServerContext is the shared state every middleware and plugin sees,
// the Go-native answer to spec.md 4.7's "context injection" design note:
// explicit parameter passing instead of a monkey-patched request object.
type ServerContext struct {
	Root   string
	Port   int
	Config *config.ServerConfig

	FileCache    *cache.FileCache
	RewriteCache *cache.RewriteCache
	Resolver     *resolve.Resolver
	Graph        *graph.Graph
	Rewriter     *rewrite.Engine
	Watcher      *watch.Watcher
	Hub          *hmr.Hub
	Propagator   *hmr.Propagator
	Logger       logger.Logger
}

// Read reads absPath (an absolute filesystem path; it is not joined with
// Root) through the file cache,
// the ServerContext's bound equivalent of spec.md 9's "read(path)" helper.
func (c *ServerContext) Read(absPath string) ([]byte, *cache.FileCacheEntry, error) {
	return c.FileCache.Read(absPath)
}

// AbsPath joins a request path under Root, guarding traversal.
func (c *ServerContext) AbsPath(requestPath string) string {
	return c.Resolver.RequestToFile(requestPath)
}

func (c *ServerContext) fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
