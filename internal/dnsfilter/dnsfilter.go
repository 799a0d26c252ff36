// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dnsfilter implements the lockdown agent's recursing DNS
// filter: a UDP/53 server that forwards queries for allowed domains to
// an upstream resolver and returns NXDOMAIN for everything else.
package dnsfilter

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/hacketthadwin/ExamProctor/internal/logging"
)

// ForwardTimeout bounds an upstream forward (§4.3, §5).
const ForwardTimeout = 5 * time.Second

// maxDatagram is generous for a UDP/53 query; anything larger is
// dropped rather than risk growing an unbounded read buffer.
const maxDatagram = 4096

// Filter is the DNS Filter (C2). It answers recursive queries from the
// local host: allowed names are forwarded to Upstream; everything else
// gets NXDOMAIN.
type Filter struct {
	Upstream string

	logger *logging.Logger
	conn   *net.UDPConn

	mu      sync.RWMutex
	allowed map[string]bool // lower-cased exact names in AllowDomainSet

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Filter over allowDomains, forwarding permitted queries to
// upstream (host:port).
func New(allowDomains []string, upstream string, logger *logging.Logger) *Filter {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	logger = logger.WithComponent("dnsfilter")

	allowed := make(map[string]bool, len(allowDomains))
	for _, d := range allowDomains {
		allowed[normalize(d)] = true
	}

	return &Filter{
		Upstream: upstream,
		logger:   logger,
		allowed:  allowed,
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// IsAllowed reports whether d equals or is a sub-domain of an entry in
// AllowDomainSet (P2).
func (f *Filter) IsAllowed(d string) bool {
	d = normalize(d)

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.allowed[d] {
		return true
	}
	for a := range f.allowed {
		if strings.HasSuffix(d, "."+a) {
			return true
		}
	}
	return false
}

// Start binds UDP/53 on the wildcard address and begins serving. It
// blocks only until the socket is bound, so the Coordinator's enter
// sequence can rely on C2 being live before proceeding (§4.2).
func (f *Filter) Start() error {
	addr, err := net.ResolveUDPAddr("udp", ":53")
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	f.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	f.wg.Add(1)
	go f.serve(ctx)

	return nil
}

// Stop closes the listener and waits for the receive loop and any
// in-flight query goroutines to exit.
func (f *Filter) Stop() error {
	if f.cancel != nil {
		f.cancel()
	}
	var err error
	if f.conn != nil {
		err = f.conn.Close()
	}
	f.wg.Wait()
	return err
}

// serve is the single receive loop (§5): it reads datagrams and spawns
// one goroutine per query, bounded only by ForwardTimeout.
func (f *Filter) serve(ctx context.Context) {
	defer f.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, raddr, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				f.logger.Error("read failed", "error", err)
				continue
			}
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])

		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.handle(raddr, msg)
		}()
	}
}

// handle answers one query: forward if allowed, else synthesize
// NXDOMAIN. Parse failures and any query carrying a name-compression
// pointer in the question section are dropped silently per §4.3/§7 --
// the client will time out and retry (the agent does not follow
// pointers; see the open question in §9).
func (f *Filter) handle(raddr *net.UDPAddr, raw []byte) {
	if containsCompressionPointer(raw) {
		return
	}

	r := new(dns.Msg)
	if err := r.Unpack(raw); err != nil {
		f.logger.Debug("parse failure", "error", err)
		return
	}
	if len(r.Question) != 1 {
		return
	}
	q := r.Question[0]

	var reply *dns.Msg
	if f.IsAllowed(q.Name) {
		reply = f.forward(r)
	} else {
		reply = new(dns.Msg)
		reply.SetRcode(r, dns.RcodeNameError)
		reply.RecursionAvailable = true
	}

	out, err := reply.Pack()
	if err != nil {
		f.logger.Debug("pack failure", "error", err)
		return
	}
	if _, err := f.conn.WriteToUDP(out, raddr); err != nil {
		f.logger.Error("write failed", "error", err)
	}
}

func (f *Filter) forward(r *dns.Msg) *dns.Msg {
	client := &dns.Client{Net: "udp", Timeout: ForwardTimeout}

	resp, _, err := client.Exchange(r, f.Upstream)
	if err != nil {
		f.logger.Warn("upstream forward failed", "upstream", f.Upstream, "question", r.Question[0].Name, "error", err)
		reply := new(dns.Msg)
		reply.SetRcode(r, dns.RcodeNameError)
		reply.RecursionAvailable = true
		return reply
	}
	return resp
}

// containsCompressionPointer reports whether raw's question section
// (the only part a well-formed, locally-originated query should carry
// a name in) contains a label-length byte with the top two bits set,
// the wire marker for a compression pointer.
func containsCompressionPointer(raw []byte) bool {
	const headerLen = 12
	if len(raw) < headerLen {
		return false
	}
	i := headerLen
	for i < len(raw) {
		b := raw[i]
		if b&0xC0 == 0xC0 {
			return true
		}
		if b == 0 {
			return false // end of name, reached cleanly
		}
		i += int(b) + 1
		if i >= len(raw) {
			return false // malformed length, let Unpack reject it
		}
	}
	return false
}
