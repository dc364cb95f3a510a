// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import "context"

// decodeFunc is invoked with a pipelined command's decoded 4-byte ISP
// response once it has actually been read back off the wire.
type decodeFunc func(res [4]byte)

// fragmentCmds is how many 4-byte ISP commands are batched into a single
// wire transaction and posted as one request node, matching the original
// firmware's FT245R_FRAGMENT_SIZE/FT245R_CMD_SIZE ratio (512/64 = 8): eight
// commands share one trailing pad byte and one round trip, instead of each
// command paying for its own.
const fragmentCmds = 8

// reqNode is one outstanding pipelined request: up to fragmentCmds commands
// sent and sampled together in a single transaction. rawLen is the encoded
// length of the whole fragment, including its one trailing pad byte; decodes
// holds one callback per command in the fragment, in order, each invoked
// with that command's own decoded [4]byte response (or nil, for a command
// whose reply nobody needs, e.g. a flash write's LOADPAGE). Nodes are
// recycled through requestQueue's free list rather than reallocated, since a
// large paged transfer can put and drain thousands of these.
type reqNode struct {
	rawLen  int
	n       int
	decodes [fragmentCmds]decodeFunc
	next    *reqNode
}

// requestQueue is the pipelined request queue (component F): a linked list
// of in-flight requests plus a free list of retired nodes. reqOutstanding
// in session.go bounds how many requests may be in flight before the
// oldest is drained, keeping the pipeline's benefit (overlap request
// latency with transport round-trips) without letting unbounded requests
// queue up against a bounded RX ring.
type requestQueue struct {
	head, tail  *reqNode
	pool        *reqNode
	outstanding int
	totalPushed int // lifetime count of nodes ever posted; exists for tests
}

func (q *requestQueue) alloc() *reqNode {
	if q.pool != nil {
		n := q.pool
		q.pool = n.next
		n.next = nil
		return n
	}
	return &reqNode{}
}

func (q *requestQueue) free(n *reqNode) {
	n.decodes = [fragmentCmds]decodeFunc{}
	n.n = 0
	n.next = q.pool
	q.pool = n
}

func (q *requestQueue) push(n *reqNode) {
	n.next = nil
	if q.tail != nil {
		q.tail.next = n
	} else {
		q.head = n
	}
	q.tail = n
	q.outstanding++
	q.totalPushed++
}

func (q *requestQueue) pop() *reqNode {
	n := q.head
	if n == nil {
		return nil
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.outstanding--
	return n
}

// pipelinedCmd appends cmd's encoded bytes to the fragment currently being
// assembled and registers decode to run against its response once that
// fragment is actually sent. Nothing reaches the wire yet: the fragment is
// flushed automatically once it holds fragmentCmds commands, or explicitly
// by flushFragment/drainAll (a page boundary, or the last bytes of a
// transfer, both of which may end a fragment early). Callers that need a
// reply immediately, rather than pipelined, should call Cmd instead.
func (s *Session) pipelinedCmd(ctx context.Context, cmd [4]byte, decode decodeFunc) error {
	for _, b := range cmd {
		s.fragRaw = s.encodeByte(s.fragRaw, b)
	}
	s.fragDecodes[s.fragN] = decode
	s.fragN++
	if s.fragN >= fragmentCmds {
		return s.flushFragment(ctx)
	}
	return nil
}

// flushFragment sends whatever commands are currently staged, if any, as a
// single fragment: one trailing pad byte, one write, one posted request
// node carrying every staged command's decode callback. It is a no-op when
// nothing is staged, so callers may call it unconditionally at a boundary.
func (s *Session) flushFragment(ctx context.Context) error {
	if s.fragN == 0 {
		return nil
	}
	raw := append(s.fragRaw, s.padByte())
	if err := s.sendCtx(ctx, raw); err != nil {
		return err
	}
	n := s.queue.alloc()
	n.rawLen = len(raw)
	n.n = s.fragN
	n.decodes = s.fragDecodes
	s.queue.push(n)

	s.fragRaw = s.fragRaw[:0]
	s.fragDecodes = [fragmentCmds]decodeFunc{}
	s.fragN = 0

	if s.queue.outstanding > reqOutstanding {
		return s.drainOne(ctx)
	}
	return nil
}

// drainOne blocks until the oldest outstanding fragment's reply is
// available, decodes every command in it, and returns its node to the free
// list.
func (s *Session) drainOne(ctx context.Context) error {
	n := s.queue.pop()
	if n == nil {
		return nil
	}
	raw := make([]byte, n.rawLen)
	if err := s.recv(ctx, raw); err != nil {
		return err
	}
	span := s.byteSpan()
	cmdSpan := 4 * span
	for j := 0; j < n.n; j++ {
		if n.decodes[j] == nil {
			continue
		}
		var res [4]byte
		for i := 0; i < 4; i++ {
			res[i] = s.decodeByte(raw, j*cmdSpan+i*span)
		}
		n.decodes[j](res)
	}
	s.queue.free(n)
	return nil
}

// drainAll flushes any in-progress fragment and then drains every
// outstanding request, in order. Paged transfers call this at each page
// boundary: a page's WRITE_PAGE commit must not be issued while any of that
// page's LOADPAGE requests, fragmented or not, are still outstanding.
func (s *Session) drainAll(ctx context.Context) error {
	if err := s.flushFragment(ctx); err != nil {
		return err
	}
	for s.queue.outstanding > 0 {
		if err := s.drainOne(ctx); err != nil {
			return err
		}
	}
	return nil
}
