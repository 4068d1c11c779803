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

// Package logger is the ambient logging leaf: a pterm-backed live terminal
// area in interactive mode, plain pterm printers otherwise, and an optional
// broadcaster so the same log lines reach any connected HMR client.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// Logger is the narrow surface every other package depends on.
type Logger interface {
	Info(format string, args ...any)
	Warning(format string, args ...any)
	Error(format string, args ...any)
	Debug(format string, args ...any)
}

// Broadcaster is satisfied by *hmr.Hub; kept as a local interface so this
// package never imports hmr (hmr already depends on nothing here, and a
// logger->hmr->logger cycle would otherwise be one grep away).
type Broadcaster interface {
	Broadcast(message []byte)
}

type logLine struct {
	Type string   `json:"type"`
	Logs []string `json:"logs"`
}

// PtermLogger implements Logger with pterm, rendering a live-updating
// status area when stdout is a TTY and falling back to plain pterm
// printers under CI/non-interactive use, adapted from serve/logger.go's
// ptermLogger.
type PtermLogger struct {
	verbose      bool
	logs         []string
	terminalLogs []string
	maxLogs      int
	maxTermLogs  int
	mu           sync.Mutex
	interactive  bool
	area         *pterm.AreaPrinter
	status       string
	broadcaster  Broadcaster
}

func NewPtermLogger(verbose bool) *PtermLogger {
	return &PtermLogger{
		verbose:      verbose,
		logs:         make([]string, 0),
		terminalLogs: make([]string, 0),
		maxLogs:      100,
		maxTermLogs:  50,
		interactive:  term.IsTerminal(int(os.Stdout.Fd())),
		status:       "Starting...",
	}
}

// Start begins the live rendering area. Call after any setup logging is
// already flushed, so early startup lines don't print above the area.
func (l *PtermLogger) Start() {
	if l.interactive && l.area == nil {
		l.area, _ = pterm.DefaultArea.Start()
		l.render()
	}
}

func (l *PtermLogger) Stop() {
	if l.area != nil {
		_ = l.area.Stop()
	}
}

func (l *PtermLogger) SetStatus(status string) {
	l.mu.Lock()
	l.status = status
	l.mu.Unlock()
	if l.interactive {
		l.render()
	}
}

// SetBroadcaster wires log lines into the HMR websocket hub so a
// connected browser devtools overlay can show server-side log output.
func (l *PtermLogger) SetBroadcaster(b Broadcaster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcaster = b
}

func (l *PtermLogger) render() {
	if !l.interactive || l.area == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder
	for _, line := range l.terminalLogs {
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n" + pterm.FgGray.Sprint(strings.Repeat("-", 80)) + "\n")
	sb.WriteString(pterm.FgLightGreen.Sprint("* ") + l.status)
	l.area.Update(sb.String())
}

func (l *PtermLogger) log(level, kind, msg string, args ...any) {
	formatted := fmt.Sprintf(msg, args...)
	timestamp := time.Now().Format("15:04:05")

	l.mu.Lock()
	plain := fmt.Sprintf("[%s] %s %s", timestamp, level, formatted)
	l.logs = append(l.logs, plain)
	if len(l.logs) > l.maxLogs {
		l.logs = l.logs[len(l.logs)-l.maxLogs:]
	}
	logsCopy := make([]string, len(l.logs))
	copy(logsCopy, l.logs)

	if l.interactive {
		var prefix, coloredMsg string
		timestampStr := pterm.FgGray.Sprint(timestamp)
		switch kind {
		case "info":
			prefix, coloredMsg = pterm.FgCyan.Sprint("INFO "), formatted
		case "warning":
			prefix, coloredMsg = pterm.FgYellow.Sprint("WARN "), pterm.FgYellow.Sprint(formatted)
		case "error":
			prefix, coloredMsg = pterm.FgRed.Sprint("ERROR"), pterm.FgRed.Sprint(formatted)
		case "debug":
			prefix, coloredMsg = pterm.FgGray.Sprint("DEBUG"), pterm.FgGray.Sprint(formatted)
		}

		width := 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}
		visualLen := len(level) + 1 + len(formatted)
		padding := width - visualLen - 10
		if padding < 1 {
			padding = 1
		}

		l.terminalLogs = append(l.terminalLogs, fmt.Sprintf(" %s %s%s%s", prefix, coloredMsg, strings.Repeat(" ", padding), timestampStr))
		if len(l.terminalLogs) > l.maxTermLogs {
			l.terminalLogs = l.terminalLogs[len(l.terminalLogs)-l.maxTermLogs:]
		}
		l.mu.Unlock()
		l.render()
	} else {
		l.mu.Unlock()
		switch kind {
		case "info":
			pterm.Info.Println(formatted)
		case "warning":
			pterm.Warning.Println(formatted)
		case "error":
			pterm.Error.Println(formatted)
		case "debug":
			pterm.Debug.Println(formatted)
		}
	}

	l.mu.Lock()
	b := l.broadcaster
	l.mu.Unlock()
	if b != nil {
		if payload, err := json.Marshal(logLine{Type: "logs", Logs: logsCopy}); err == nil {
			b.Broadcast(payload)
		}
	}
}

func (l *PtermLogger) Logs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.logs))
	copy(out, l.logs)
	return out
}

func (l *PtermLogger) Info(msg string, args ...any)    { l.log("INFO", "info", msg, args...) }
func (l *PtermLogger) Warning(msg string, args ...any) { l.log("WARN", "warning", msg, args...) }
func (l *PtermLogger) Error(msg string, args ...any)   { l.log("ERROR", "error", msg, args...) }
func (l *PtermLogger) Debug(msg string, args ...any) {
	if l.verbose {
		l.log("DEBUG", "debug", msg, args...)
	}
}
