// Package hud draws and removes the two on-screen toggle buttons (radar,
// beeps) that the session engine reacts to via InSim button-click events.
package hud

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/paddocklink/telemetry-bridge/internal/insim"
)

// Fixed button-click ids for the radar and beeps toggle buttons.
const (
	RadarButtonID uint8 = 200
	BeepsButtonID uint8 = 201
)

const maxRadarSummaryLen = 200

// writer is the subset of *insim.Client the controller needs; defined here
// so tests can substitute a recording fake.
type writer interface {
	SendButton(spec insim.ButtonSpec) error
	DeleteButton(buttonID uint8) error
	Connected() bool
}

// Controller manages the radar and beeps buttons at fixed screen
// coordinates. Drawing is skipped silently whenever the InSim write side
// is not connected.
type Controller struct {
	Logger zerolog.Logger

	client  writer
	visible bool
}

// NewController wires a Controller to the InSim write path.
func NewController(client *insim.Client, logger zerolog.Logger) *Controller {
	return &Controller{Logger: logger, client: client}
}

// Show draws both buttons. radarSummary, when non-empty and radarOn, is
// appended to the radar caption and truncated to 200 Latin-1 bytes.
func (c *Controller) Show(radarOn, beepsOn bool, radarSummary string) {
	c.draw(radarOn, beepsOn, radarSummary)
	c.visible = true
}

// Update is Show's idempotent sibling: resends captions whether or not the
// buttons were already visible.
func (c *Controller) Update(radarOn, beepsOn bool, radarSummary string) {
	c.draw(radarOn, beepsOn, radarSummary)
	c.visible = true
}

// Remove deletes both buttons. Errors during teardown are logged but never
// propagated.
func (c *Controller) Remove() {
	if !c.visible {
		return
	}
	if !c.client.Connected() {
		c.visible = false
		return
	}
	if err := c.client.DeleteButton(RadarButtonID); err != nil {
		c.Logger.Warn().Msgf("hud: failed to remove radar button: %v", err)
	}
	if err := c.client.DeleteButton(BeepsButtonID); err != nil {
		c.Logger.Warn().Msgf("hud: failed to remove beeps button: %v", err)
	}
	c.visible = false
}

func (c *Controller) draw(radarOn, beepsOn bool, radarSummary string) {
	if !c.client.Connected() {
		return
	}

	radarCaption := onOffCaption("Radar", radarOn)
	if radarOn && radarSummary != "" {
		radarCaption = truncateLatin1(fmt.Sprintf("Radar: %s", radarSummary), maxRadarSummaryLen)
	}

	if err := c.client.SendButton(insim.ButtonSpec{
		ClickID: RadarButtonID,
		Style:   insim.ISBClick,
		Left:    0,
		Top:     0,
		Width:   40,
		Height:  6,
		Text:    radarCaption,
	}); err != nil {
		c.Logger.Warn().Msgf("hud: failed to draw radar button: %v", err)
	}

	if err := c.client.SendButton(insim.ButtonSpec{
		ClickID: BeepsButtonID,
		Style:   insim.ISBClick,
		Left:    0,
		Top:     6,
		Width:   40,
		Height:  6,
		Text:    onOffCaption("Beeps", beepsOn),
	}); err != nil {
		c.Logger.Warn().Msgf("hud: failed to draw beeps button: %v", err)
	}
}

func onOffCaption(label string, on bool) string {
	if on {
		return label + ": ON"
	}
	return label + ": OFF"
}

func truncateLatin1(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
