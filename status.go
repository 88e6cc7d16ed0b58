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
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-capt/internal/frame"
)

// Status is the printer status record. A decode only overwrites the fields
// present in the reply, so a short basic status keeps the extended fields of
// an earlier extended status.
type Status struct {
	Words         [7]uint16
	PageDecoding  uint16
	PagePrinting  uint16
	PageOut       uint16
	PageCompleted uint16
}

// A body of at most statusBasicSize bytes carries only word 0; one shorter
// than statusExtendedSize stops after word 1.
const (
	statusBasicSize    = 10
	statusExtendedSize = 20
)

// Decode updates the record from a status reply body (the reply without its
// 4-byte header).
func (st *Status) Decode(reply []byte) {
	put := func(dst *uint16, off int) {
		if off+2 <= len(reply) {
			*dst = frame.Word(reply[off], reply[off+1])
		}
	}

	put(&st.Words[0], 0)
	if len(reply) <= statusBasicSize {
		return
	}
	put(&st.Words[1], 8)
	if len(reply) < statusExtendedSize {
		return
	}
	put(&st.Words[2], 10)
	put(&st.Words[3], 12)
	put(&st.PageDecoding, 14)
	put(&st.PagePrinting, 16)
	put(&st.PageOut, 18)
	put(&st.PageCompleted, 20)
	put(&st.Words[4], 24)
	put(&st.Words[5], 30)
	put(&st.Words[6], 38)
}

// Has reports whether flag is set
func (st Status) Has(flag Flag) bool {
	if flag.Word < 0 || flag.Word >= len(st.Words) {
		return false
	}
	return st.Words[flag.Word]&flag.Mask != 0
}

func (st Status) String() string {
	var sb strings.Builder
	for i, w := range st.Words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%04X", w)
	}
	fmt.Fprintf(&sb, " pages %d/%d/%d/%d",
		st.PageDecoding, st.PagePrinting, st.PageOut, st.PageCompleted)
	return sb.String()
}

// Status returns a copy of the current status record
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// ResetStatus clears the status record
func (s *Session) ResetStatus() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = Status{}
}

func (s *Session) queryStatus(ctx context.Context, opcode uint16) (Status, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	reply, _, err := s.sendAndReceiveLocked(ctx, opcode, nil, -1)
	if err != nil {
		return Status{}, err
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Decode(reply)
	Debugf("status %s", s.status)
	return s.status, nil
}

// GetStatus queries the basic status and merges it into the record
func (s *Session) GetStatus(ctx context.Context) (Status, error) {
	st, err := s.queryStatus(ctx, CmdCheckStatus)
	if err != nil {
		return Status{}, fmt.Errorf("check status: %w", err)
	}
	return st, nil
}

// GetExtendedStatus queries the basic status and, when the printer flags
// new extended data, the extended status as well. Both replies are merged
// into the same record.
func (s *Session) GetExtendedStatus(ctx context.Context) (Status, error) {
	st, err := s.GetStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	if !st.Has(FlagExtendedStatusChanged) {
		return st, nil
	}

	st, err = s.queryStatus(ctx, CmdCheckExtendedStatus)
	if err != nil {
		return Status{}, fmt.Errorf("check extended status: %w", err)
	}
	return st, nil
}

// WaitUntilReady polls the basic status until the printer stops reporting
// busy, pausing PollInterval between polls. It returns the first error or
// ctx's error.
func (s *Session) WaitUntilReady(ctx context.Context) error {
	for {
		st, err := s.GetStatus(ctx)
		if err != nil {
			return err
		}
		if !st.Has(FlagBusy) {
			return nil
		}
		Debugln("printer busy, waiting")
		if err := s.sleep(ctx, s.config.PollInterval); err != nil {
			return err
		}
	}
}
