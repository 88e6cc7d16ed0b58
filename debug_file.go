// go-capt
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-capt.
//
// go-capt is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-capt is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-capt; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.


package capt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-capt/internal/syncutil"
)

// sessionLog mirrors every driver log line, debug included, into a file
// that can be attached to a bug report.
type sessionLog struct {
	w    io.Writer
	file *os.File
	path string
	mu   syncutil.Mutex
}

var activeLog sessionLog

// attach directs log lines to w. A nil w detaches the log.
func (l *sessionLog) attach(w io.Writer, file *os.File, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w, l.file, l.path = w, file, path
}

func (l *sessionLog) line(level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w != nil {
		_, _ = fmt.Fprintf(l.w, "%s %s: %s\n", time.Now().Format("15:04:05.000"), level, message)
	}
}

// InitSessionLog opens capt_YYYYMMDD_HHMMSS.log in dir (the current
// directory when dir is empty) and returns its path.
func InitSessionLog(dir string) (string, error) {
	if path := GetSessionLogPath(); path != "" {
		return "", fmt.Errorf("session log already open: %s", path)
	}

	path := filepath.Join(dir, "capt_"+time.Now().Format("20060102_150405")+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // name built here
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	writeSessionHeader(file)
	activeLog.attach(file, file, path)
	return path, nil
}

// CloseSessionLog writes the footer and closes the session log. It is a
// no-op when no log is open.
func CloseSessionLog() error {
	activeLog.line("INFO", "=== Session ended ===")

	activeLog.mu.Lock()
	file := activeLog.file
	activeLog.w, activeLog.file, activeLog.path = nil, nil, ""
	activeLog.mu.Unlock()

	if file == nil {
		return nil
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the open session log, or "".
func GetSessionLogPath() string {
	activeLog.mu.Lock()
	defer activeLog.mu.Unlock()
	return activeLog.path
}

// writeSessionHeader records the host and the print environment the
// driver runs under.
func writeSessionHeader(w io.Writer) {
	lines := []string{
		"=== CAPT Debug Session Log ===",
		"Started: " + time.Now().Format(time.RFC3339),
		fmt.Sprintf("PID: %d", os.Getpid()),
		fmt.Sprintf("OS: %s/%s", runtime.GOOS, runtime.GOARCH),
		"Go Version: " + runtime.Version(),
	}
	if exe, err := os.Executable(); err == nil {
		lines = append(lines, "Executable: "+exe)
	}
	lines = append(lines, "Command Line: "+strings.Join(os.Args, " "))
	for _, key := range []string{"DEVICE_URI", "PRINTER", "CUPS_SERVERROOT", "CAPT_DEBUG"} {
		if v := os.Getenv(key); v != "" {
			lines = append(lines, key+": "+v)
		}
	}
	_, _ = fmt.Fprint(w, strings.Join(lines, "\n")+"\n===============================\n\n")
}
