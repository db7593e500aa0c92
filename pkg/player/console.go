package player

import (
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/giongto35/cloud-player/pkg/session"
)

// console shows the session status in the log.
// Controls are forwarded to the player, only the latest value is kept.
type console struct {
	log      *logger.Logger
	controls chan session.Controls
}

func newConsole(log *logger.Logger) *console {
	return &console{log: log.Module("ui"), controls: make(chan session.Controls, 1)}
}

func (c *console) Status(text string) { c.log.Info().Msg(text) }

func (c *console) Controls(ctl session.Controls) {
	c.log.Debug().Bool("start", ctl.CanStart).Bool("stop", ctl.CanStop).Msg("Controls")
	for {
		select {
		case c.controls <- ctl:
			return
		default:
			select {
			case <-c.controls:
			default:
			}
		}
	}
}
