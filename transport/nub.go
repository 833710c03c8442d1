// Package transport implements the Nub abstraction: the boundary between
// the resolution state machine and the network. Production code talks to a
// real nameserver over UDP (falling back to TCP on truncation) via
// miekg/dns.Client; tests substitute a Fake that returns canned messages,
// so the state machine in package query never needs a live socket.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Timeout is the per-attempt network timeout. The resolver retries once on
// timeout before giving up on an address.
const Timeout = 3 * time.Second

// Error wraps a transport-level failure (timeout, connection refused,
// malformed wire data) so callers can distinguish "server said no" from
// "never got an answer".
type Error struct {
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: query to %s failed: %v", e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Nub sends a single query message to addr and returns the response, along
// with the measured round-trip time for the Selector's RTT table.
type Nub interface {
	Exchange(ctx context.Context, addr string, q *dns.Msg) (*dns.Msg, time.Duration, error)
}

// Client is the production Nub: UDP with one retry, falling back to TCP
// when the UDP response is truncated.
type Client struct {
	udp *dns.Client
	tcp *dns.Client
}

// New returns a Client with the package's default Timeout on both the UDP
// and TCP transports.
func New() *Client {
	return NewWithTimeout(Timeout)
}

// NewWithTimeout is New with a caller-supplied per-attempt timeout, used by
// the Resolver to honor Config.TransportTimeout.
func NewWithTimeout(timeout time.Duration) *Client {
	return &Client{
		udp: &dns.Client{Net: "udp", Timeout: timeout},
		tcp: &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

// Exchange sends q to addr (host:port) over UDP, retrying once on timeout,
// and re-sends over TCP if the UDP reply is truncated.
func (c *Client) Exchange(ctx context.Context, addr string, q *dns.Msg) (*dns.Msg, time.Duration, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}

	resp, rtt, err := c.udp.ExchangeContext(ctx, q, addr)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		resp, rtt, err = c.udp.ExchangeContext(ctx, q, addr)
	}
	if err != nil {
		return nil, rtt, &Error{Addr: addr, Err: err}
	}
	if resp.Truncated {
		resp, rtt, err = c.tcp.ExchangeContext(ctx, q, addr)
		if err != nil {
			return nil, rtt, &Error{Addr: addr, Err: err}
		}
	}
	return resp, rtt, nil
}

// Fake is a test Nub keyed by host:port address (a bare host gets port 53,
// as with Client), returning a scripted response (or error) per address so query-package tests can drive the state machine
// through referrals, CNAMEs, NXDOMAIN, and timeouts deterministically.
type Fake struct {
	Responses map[string]*dns.Msg
	Errors    map[string]error
	RTT       time.Duration

	// Calls records every address queried, in order, so tests can assert
	// on the walk the state machine took.
	Calls []string
}

// NewFake returns an empty Fake; populate Responses/Errors before use.
func NewFake() *Fake {
	return &Fake{
		Responses: make(map[string]*dns.Msg),
		Errors:    make(map[string]error),
		RTT:       time.Millisecond,
	}
}

func (f *Fake) Exchange(ctx context.Context, addr string, q *dns.Msg) (*dns.Msg, time.Duration, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}
	f.Calls = append(f.Calls, addr)
	if err, ok := f.Errors[addr]; ok {
		return nil, f.RTT, &Error{Addr: addr, Err: err}
	}
	resp, ok := f.Responses[addr]
	if !ok {
		return nil, f.RTT, &Error{Addr: addr, Err: fmt.Errorf("fake: no response scripted for %s", addr)}
	}
	out := resp.Copy()
	out.Id = q.Id
	return out, f.RTT, nil
}
