// Copyright (c) 2026 The Tcpserv Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tcpserv

// pendingQueue is the FIFO of accepted-but-unclaimed clients, linked through
// the intrusive next pointer on Client. The accept callback appends at the
// tail, the application pops from the head, and the discard path unlinks
// from anywhere in between. Not safe for concurrent use; the Server
// serializes access.
type pendingQueue struct {
	head *Client
	tail *Client
	size int
}

func (q *pendingQueue) empty() bool {
	return q.head == nil
}

func (q *pendingQueue) len() int {
	return q.size
}

// push appends c at the tail, preserving arrival order.
func (q *pendingQueue) push(c *Client) {
	c.next = nil
	if q.tail == nil {
		q.head, q.tail = c, c
	} else {
		q.tail.next = c
		q.tail = c
	}
	q.size++
}

// pop removes and returns the head, or nil when the queue is empty.
func (q *pendingQueue) pop() *Client {
	c := q.head
	if c == nil {
		return nil
	}
	q.head = c.next
	if q.head == nil {
		q.tail = nil
	}
	c.next = nil
	q.size--
	return c
}

// remove unlinks c wherever it sits and reports whether it was queued.
func (q *pendingQueue) remove(c *Client) bool {
	var prev *Client
	for cur := q.head; cur != nil; cur = cur.next {
		if cur != c {
			prev = cur
			continue
		}
		if prev == nil {
			q.head = cur.next
		} else {
			prev.next = cur.next
		}
		if q.tail == cur {
			q.tail = prev
		}
		cur.next = nil
		q.size--
		return true
	}
	return false
}

// firstBuffered scans head to tail and returns the buffered-byte count of
// the first client with any inbound data, looking past empty ones. Returns
// 0 when no queued client is ready for reading.
func (q *pendingQueue) firstBuffered() int {
	for c := q.head; c != nil; c = c.next {
		if n := c.BufferedBytes(); n > 0 {
			return n
		}
	}
	return 0
}
