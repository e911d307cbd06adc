package provider_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/provider"
)

// fakeProvider scripts availability and send outcomes.
type fakeProvider struct {
	name      string
	available bool
	sendErr   error
	sends     int
}

func (f *fakeProvider) Name() string                      { return f.name }
func (f *fakeProvider) IsAvailable(context.Context) bool  { return f.available }
func (f *fakeProvider) Send(context.Context, *provider.Message) error {
	f.sends++
	return f.sendErr
}

var msg = &provider.Message{To: "alice@example.org", Subject: "Hi", HTML: "<p>Hi</p>"}

func TestChain_FirstProviderWins(t *testing.T) {
	first := &fakeProvider{name: "first", available: true}
	second := &fakeProvider{name: "second", available: true}
	chain := provider.NewChain(time.Second, zap.NewNop(), first, second)

	name, err := chain.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "first" {
		t.Fatalf("expected first provider, got %s", name)
	}
	if second.sends != 0 {
		t.Fatal("second provider must not be attempted after a success")
	}
}

func TestChain_FallsThroughOnUnavailable(t *testing.T) {
	down := &fakeProvider{name: "down", available: false}
	up := &fakeProvider{name: "up", available: true}
	chain := provider.NewChain(time.Second, zap.NewNop(), down, up)

	name, err := chain.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "up" {
		t.Fatalf("expected fallback provider, got %s", name)
	}
	if down.sends != 0 {
		t.Fatal("unavailable provider must not be attempted")
	}
}

func TestChain_FallsThroughOnSendFailure(t *testing.T) {
	flaky := &fakeProvider{name: "flaky", available: true, sendErr: errors.New("boom")}
	solid := &fakeProvider{name: "solid", available: true}
	chain := provider.NewChain(time.Second, zap.NewNop(), flaky, solid)

	name, err := chain.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "solid" {
		t.Fatalf("expected fallback provider, got %s", name)
	}
	if flaky.sends != 1 {
		t.Fatalf("expected one attempt on flaky, got %d", flaky.sends)
	}
}

func TestChain_AllFail(t *testing.T) {
	a := &fakeProvider{name: "a", available: true, sendErr: errors.New("err-a")}
	b := &fakeProvider{name: "b", available: false}
	chain := provider.NewChain(time.Second, zap.NewNop(), a, b)

	_, err := chain.Send(context.Background(), msg)
	if err == nil {
		t.Fatal("expected an error when every provider fails")
	}
	// The joined error names every provider so operators can see the full path.
	for _, want := range []string{"err-a", "unavailable"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := provider.NewChain(time.Second, zap.NewNop())
	if _, err := chain.Send(context.Background(), msg); err == nil {
		t.Fatal("expected an error from an empty chain")
	}
}

func TestChain_Names(t *testing.T) {
	chain := provider.NewChain(time.Second, zap.NewNop(),
		&fakeProvider{name: "resend"}, &fakeProvider{name: "smtp"})
	names := chain.Names()
	if len(names) != 2 || names[0] != "resend" || names[1] != "smtp" {
		t.Fatalf("unexpected names: %v", names)
	}
}
