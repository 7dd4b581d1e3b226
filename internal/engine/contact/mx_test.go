package contact

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/miekg/dns"
)

func fakeExchange(mx map[string]bool, calls *atomic.Int32) exchangeFunc {
	return func(_ context.Context, msg *dns.Msg, _ string) (*dns.Msg, error) {
		calls.Add(1)
		resp := new(dns.Msg)
		resp.SetReply(msg)
		name := msg.Question[0].Name
		if mx[name] {
			resp.Answer = append(resp.Answer, &dns.MX{
				Hdr:        dns.RR_Header{Name: name, Rrtype: dns.TypeMX, Class: dns.ClassINET},
				Preference: 10,
				Mx:         "mail." + name,
			})
		}
		return resp, nil
	}
}

func TestMXFilter(t *testing.T) {
	var calls atomic.Int32
	m := NewMXChecker([]string{"resolver:53"}, 0)
	m.exchange = fakeExchange(map[string]bool{"shop.example.com.": true}, &calls)

	in := []string{"a@shop.example.com", "b@nomail.example", "c@SHOP.example.com"}
	got := m.Filter(context.Background(), in)
	if want := []string{"a@shop.example.com", "c@SHOP.example.com"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Filter = %v, want %v", got, want)
	}
	if calls.Load() != 2 {
		t.Fatalf("exchange calls = %d, want 2 (cached per domain)", calls.Load())
	}
}

func TestMXKeepsAddressWhenResolversFail(t *testing.T) {
	m := NewMXChecker([]string{"a:53", "b:53"}, 0)
	m.exchange = func(context.Context, *dns.Msg, string) (*dns.Msg, error) {
		return nil, errors.New("timeout")
	}
	if !m.Deliverable(context.Background(), "x@shop.example.com") {
		t.Fatalf("address should be kept when no resolver answers")
	}
}

func TestMXRejectsMalformed(t *testing.T) {
	m := NewMXChecker(nil, 0)
	for _, e := range []string{"nobody", "trailing@"} {
		if m.Deliverable(context.Background(), e) {
			t.Errorf("Deliverable(%q) = true", e)
		}
	}
}
