package hud

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/paddocklink/telemetry-bridge/internal/insim"
)

type fakeWriter struct {
	connected   bool
	sent        []insim.ButtonSpec
	deleted     []uint8
	sendErr     error
}

func (f *fakeWriter) SendButton(spec insim.ButtonSpec) error {
	f.sent = append(f.sent, spec)
	return f.sendErr
}

func (f *fakeWriter) DeleteButton(buttonID uint8) error {
	f.deleted = append(f.deleted, buttonID)
	return nil
}

func (f *fakeWriter) Connected() bool { return f.connected }

func newTestController(w *fakeWriter) *Controller {
	return &Controller{Logger: zerolog.Nop(), client: w}
}

func TestShowSendsTwoButtons(t *testing.T) {
	w := &fakeWriter{connected: true}
	c := newTestController(w)

	c.Show(false, true, "")

	if len(w.sent) != 2 {
		t.Fatalf("expected 2 buttons drawn, got %d", len(w.sent))
	}
	if w.sent[0].ClickID != RadarButtonID || w.sent[0].Text != "Radar: OFF" {
		t.Fatalf("unexpected radar button: %+v", w.sent[0])
	}
	if w.sent[1].ClickID != BeepsButtonID || w.sent[1].Text != "Beeps: ON" {
		t.Fatalf("unexpected beeps button: %+v", w.sent[1])
	}
}

func TestShowSkippedWhenNotConnected(t *testing.T) {
	w := &fakeWriter{connected: false}
	c := newTestController(w)
	c.Show(true, true, "")
	if len(w.sent) != 0 {
		t.Fail()
	}
}

func TestShowWithRadarSummaryIsTruncated(t *testing.T) {
	w := &fakeWriter{connected: true}
	c := newTestController(w)

	long := strings.Repeat("x", 500)
	c.Show(true, false, long)

	if len(w.sent[0].Text) != maxRadarSummaryLen {
		t.Fatalf("expected radar caption truncated to %d bytes, got %d", maxRadarSummaryLen, len(w.sent[0].Text))
	}
}

func TestRemoveSendsTwoDeletes(t *testing.T) {
	w := &fakeWriter{connected: true}
	c := newTestController(w)
	c.Show(true, true, "")
	c.Remove()

	if len(w.deleted) != 2 {
		t.Fatalf("expected 2 buttons removed, got %d", len(w.deleted))
	}
}

func TestRemoveIsNoOpWhenNeverShown(t *testing.T) {
	w := &fakeWriter{connected: true}
	c := newTestController(w)
	c.Remove()
	if len(w.deleted) != 0 {
		t.Fail()
	}
}
