// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import "context"

// This file implements the FIFO flow controller (component C). Every byte
// written to the chip produces exactly one byte read back one bit-time
// later, since synchronous bit-bang mode samples MISO on every clocked
// write. pending counts bytes already written whose matching read has not
// yet been performed; it must never exceed fifoMin, or a write could block
// forever waiting for FIFO space the host has not yet drained. This
// invariant is the single most important correctness property of the
// transport layer: get it wrong and large pipelined transfers deadlock.

// fill performs one non-blocking read of whatever bytes are already
// available, appends them to the RX ring, and reduces pending by that
// amount. It returns the number of bytes read.
func (s *Session) fill() (int, error) {
	tmp := make([]byte, s.rx.headroom())
	n, err := s.t.Read(tmp)
	if err != nil {
		return 0, wrapErr("fill", err)
	}
	if n > 0 {
		s.rx.put(tmp[:n])
		s.pending -= n
	}
	return n, nil
}

// ensureHeadroom guarantees that writing n more bytes will not push pending
// past fifoMin, draining via fill as needed. When fill reports nothing
// available, it blocks briefly on the transport's blocking read path
// instead of busy-looping, since the chip genuinely has nothing queued yet.
func (s *Session) ensureHeadroom(ctx context.Context, n int) error {
	for s.pending+n > fifoMin {
		got, err := s.fill()
		if err != nil {
			return err
		}
		if got == 0 {
			tmp := make([]byte, 1)
			r, err := s.t.ReadAll(ctx, tmp)
			if err != nil {
				return wrapErr("ensureHeadroom", err)
			}
			if r > 0 {
				s.rx.put(tmp[:r])
				s.pending -= r
			}
		}
	}
	return nil
}

// send writes buf to the chip, first ensuring enough FIFO headroom exists.
// Every byte of buf produces one reply byte the caller is expected to
// eventually consume via recv.
func (s *Session) send(buf []byte) error {
	return s.sendCtx(context.Background(), buf)
}

// sendCtx writes buf to the chip in headroom-sized chunks: a fragment can be
// far larger than fifoMin (up to FT245R_FRAGMENT_SIZE), so the whole buffer
// is never written in one call. Each chunk is sized to whatever headroom
// ensureHeadroom has just freed up, matching the original firmware's
// ft245r_flush loop rather than assuming one Write covers the whole buffer.
func (s *Session) sendCtx(ctx context.Context, buf []byte) error {
	for len(buf) > 0 {
		if err := s.ensureHeadroom(ctx, 1); err != nil {
			return err
		}
		chunk := fifoMin - s.pending
		if chunk > len(buf) {
			chunk = len(buf)
		}
		if _, err := s.t.Write(buf[:chunk]); err != nil {
			return wrapErr("send", err)
		}
		s.pending += chunk
		buf = buf[chunk:]
	}
	return nil
}

// sendAndDiscard is like send, but marks the len(buf) reply bytes it will
// produce as garbage the next recv should skip rather than return. This is
// used for bytes whose echo carries no useful sample: TPI transmit frames,
// static pin writes, and the load-extended-address command.
func (s *Session) sendAndDiscard(ctx context.Context, buf []byte) error {
	if err := s.sendCtx(ctx, buf); err != nil {
		return err
	}
	s.discard += len(buf)
	return nil
}

// recv blocks until len(out) real (non-discarded) reply bytes are
// available, skipping any bytes previously marked by sendAndDiscard, and
// copies them into out.
func (s *Session) recv(ctx context.Context, out []byte) error {
	need := s.discard + len(out)
	for s.rx.len < need {
		if _, err := s.fill(); err != nil {
			return err
		}
		if s.rx.len >= need {
			break
		}
		tmp := make([]byte, need-s.rx.len)
		n, err := s.t.ReadAll(ctx, tmp)
		if err != nil {
			return wrapErr("recv", err)
		}
		s.rx.put(tmp[:n])
		s.pending -= n
	}
	if s.discard > 0 {
		junk := make([]byte, s.discard)
		s.rx.get(junk)
		s.discard = 0
	}
	s.rx.get(out)
	return nil
}

// drain blocks until every outstanding written byte has been read back,
// then discards it all. It is used before the final program-enable retry
// and when a Session is opened, where any stale in-flight bytes must not be mistaken
// for a fresh command's response.
func (s *Session) drain() error {
	ctx := context.Background()
	for s.pending > 0 {
		got, err := s.fill()
		if err != nil {
			return err
		}
		if got == 0 {
			tmp := make([]byte, s.pending)
			n, err := s.t.ReadAll(ctx, tmp)
			if err != nil {
				return wrapErr("drain", err)
			}
			s.rx.put(tmp[:n])
			s.pending -= n
		}
	}
	s.rx.head = 0
	s.rx.tail = 0
	s.rx.len = 0
	s.discard = 0
	return nil
}
