package urgency

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/storage"
)

func TestHandler_Match(t *testing.T) {
	h := NewHandler(logger.New("debug"))
	for _, text := range []string{"I need urgent processing", "This is an EMERGENCY", "can you go faster"} {
		if h.Match(text) == 0 {
			t.Errorf("Match(%q) = 0, want > 0", text)
		}
	}
	if h.Match("hello") != 0 {
		t.Error("Match(hello) should be 0")
	}
}

func TestHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(logger.NewWithWriter("info", &buf))

	reply := h.Handle(context.Background(), &storage.Application{ID: "WP-2024-1234"}, "urgent")
	if reply.Text != Text {
		t.Errorf("Text = %q", reply.Text)
	}
	for _, part := range []string{"emergency-visa@germany.gov", "URGENT PROCESSING REQUEST", "€50", "48-72 hours"} {
		if !strings.Contains(reply.Text, part) {
			t.Errorf("reply missing %q", part)
		}
	}
	if !strings.Contains(buf.String(), "WP-2024-1234") {
		t.Errorf("expected application id in log, got %s", buf.String())
	}
}

func TestHandler_DispatchIntent(t *testing.T) {
	h := NewHandler(logger.New("debug"))
	app := &storage.Application{ID: "SV-2024-7891"}

	reply, err := h.DispatchIntent(context.Background(), app, IntentRequest, nil)
	if err != nil || reply.Intent != ModuleName {
		t.Fatalf("DispatchIntent() = %+v, %v", reply, err)
	}
	if _, err := h.DispatchIntent(context.Background(), app, "query", nil); !errors.Is(err, domerrors.ErrUnknownIntent) {
		t.Errorf("expected ErrUnknownIntent, got %v", err)
	}
}
