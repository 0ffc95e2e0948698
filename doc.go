// MIT License
//
// Copyright (c) 2016-2017 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package qnet is a reliable, message-oriented, bidirectional TCP transport
// exposed through in-process queues.
//
// A caller hands the library a destination (Connect) or a local bind address
// (Accept) and gets back queue handles that stay valid for the lifetime of the
// endpoint regardless of what the underlying socket is doing: disconnects,
// reconnects, and stalls show up as in-band Event values on the inbound queue
// rather than as errors. The library owns the sockets, the per-endpoint I/O
// pump, wire framing, and heartbeat-based liveness detection; it does not
// implement any protocol layered on top (no replication, no negotiation, no
// TLS — see the package-level Non-goals in the design notes).
package qnet
