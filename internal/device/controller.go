// Package device is the boundary to the physical bench. The gateway core
// only ever hands it machine commands and a single Terminate signal; the
// actual motor/load-cell loop lives on the other side of that boundary.
package device

import (
	"log"

	"arrowctl/internal/models"
	"arrowctl/internal/protocol"
)

// ControlMessage is the hardware control channel's vocabulary.
type ControlMessage int

const (
	// Terminate requests cooperative shutdown. Delivered at most once.
	Terminate ControlMessage = iota
)

const inboxSize = 32

// Controller owns the device side of the command flow: it drains machine
// commands forwarded by the dispatcher, reports status transitions into
// the gateway's update stream, and exits on Terminate.
type Controller struct {
	ctl      chan ControlMessage
	commands chan protocol.MachineCommand
	status   chan<- protocol.Payload
	cal      *Calibration
}

// New wires a controller. status receives Status payloads for broadcast;
// cal may be nil, in which case the default calibration is used.
func New(status chan<- protocol.Payload, cal *Calibration) *Controller {
	if cal == nil {
		cal = DefaultCalibration()
	}
	return &Controller{
		ctl:      make(chan ControlMessage, inboxSize),
		commands: make(chan protocol.MachineCommand, inboxSize),
		status:   status,
		cal:      cal,
	}
}

// AttachStatus wires the status destination after construction, for
// callers that build the update queue and the controller in either order.
// Must happen before Run.
func (c *Controller) AttachStatus(status chan<- protocol.Payload) {
	c.status = status
}

// Control is the shutdown signal inbox.
func (c *Controller) Control() chan<- ControlMessage { return c.ctl }

// Commands is the dispatcher-facing command inbox.
func (c *Controller) Commands() chan<- protocol.MachineCommand { return c.commands }

// Calibration exposes the active sample conversion to the measurement
// loop.
func (c *Controller) Calibration() *Calibration { return c.cal }

// Run processes control messages and machine commands until Terminate.
// Meant to be started on its own goroutine by main.
func (c *Controller) Run() {
	if err := c.cal.Prepare(); err != nil {
		log.Println("[WARN] calibration unusable until recalibrated:", err)
		c.report(models.StatusError)
	} else {
		c.report(models.StatusPaused)
	}

	for {
		select {
		case msg := <-c.ctl:
			switch msg {
			case Terminate:
				log.Println("device controller terminating")
				return
			}
		case cmd := <-c.commands:
			c.handle(cmd)
		}
	}
}

func (c *Controller) handle(cmd protocol.MachineCommand) {
	switch cmd {
	case protocol.CmdCalibrate:
		if err := c.cal.Prepare(); err != nil {
			log.Println("[ERR] calibration failed:", err)
			c.report(models.StatusError)
			return
		}
		c.report(models.StatusPaused)
	case protocol.CmdReset, protocol.CmdRestart:
		c.report(models.StatusPaused)
	case protocol.CmdShutdown:
		c.report(models.StatusPaused)
	default:
		log.Println("[WARN] ignoring unknown machine command:", cmd)
	}
}

func (c *Controller) report(s models.MachineStatus) {
	if c.status == nil {
		return
	}
	select {
	case c.status <- protocol.Status(s):
	default:
		// status is advisory; never stall the device loop on a full queue
	}
}
