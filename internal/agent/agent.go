package agent

import (
	"context"

	"github.com/ccastromar/aos-healthcare-assistant/internal/bus"
)

// Agent is a long-lived actor fed through its bus inbox.
type Agent interface {
	Start(ctx context.Context) error
	Inbox() chan bus.Message
}

// Bus targets and message types.
const (
	RunnerTarget = "crew_runner"
	MsgKickoff   = "kickoff"
)
