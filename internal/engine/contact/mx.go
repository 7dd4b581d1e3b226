package contact

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

var defaultResolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// exchangeFunc sends one DNS query to server.
type exchangeFunc func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)

// MXChecker tells whether an email domain can receive mail. Answers are cached per domain.
type MXChecker struct {
	resolvers []string
	exchange  exchangeFunc

	mu    sync.Mutex
	cache map[string]bool
}

func NewMXChecker(resolvers []string, timeout time.Duration) *MXChecker {
	if len(resolvers) == 0 {
		resolvers = defaultResolvers
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := &dns.Client{Timeout: timeout}
	return &MXChecker{
		resolvers: resolvers,
		exchange: func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
			resp, _, err := client.ExchangeContext(ctx, msg, server)
			return resp, err
		},
		cache: make(map[string]bool),
	}
}

// Deliverable reports whether the domain of email publishes MX records.
// When every resolver fails to answer the address is kept.
func (m *MXChecker) Deliverable(ctx context.Context, email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])

	m.mu.Lock()
	ok, cached := m.cache[domain]
	m.mu.Unlock()
	if cached {
		return ok
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	answered := false
	ok = false
	for _, server := range m.resolvers {
		resp, err := m.exchange(ctx, msg, server)
		if err != nil || resp == nil {
			continue
		}
		answered = true
		if resp.Rcode == dns.RcodeSuccess && hasMX(resp) {
			ok = true
			break
		}
	}
	if !answered {
		return true
	}

	m.mu.Lock()
	m.cache[domain] = ok
	m.mu.Unlock()
	return ok
}

// Filter keeps deliverable addresses, preserving order.
func (m *MXChecker) Filter(ctx context.Context, emails []string) []string {
	var out []string
	for _, e := range emails {
		if m.Deliverable(ctx, e) {
			out = append(out, e)
		}
	}
	return out
}

func hasMX(resp *dns.Msg) bool {
	for _, rr := range resp.Answer {
		if _, ok := rr.(*dns.MX); ok {
			return true
		}
	}
	return false
}
