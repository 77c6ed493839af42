package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/reckless/internal/execx"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// DefaultDependencyTimeout bounds a dependency installation. Native builds on
// small boards can take a long time.
const DefaultDependencyTimeout = 30 * time.Minute

// CommandProcedure runs fixed argument lists from the staged source directory.
// Success is a zero exit code from every call.
type CommandProcedure struct {
	Calls   [][]string
	Runner  execx.Runner
	Timeout time.Duration
	Stream  bool
	Log     *logger.Logger
}

var _ Procedure = (*CommandProcedure)(nil)

// Install implements Procedure.
func (p *CommandProcedure) Install(ctx context.Context, job Job) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultDependencyTimeout
	}

	for _, call := range p.Calls {
		if len(call) == 0 {
			continue
		}
		cmd := execx.Command{
			Name:    call[0],
			Args:    call[1:],
			Dir:     job.SourceDir,
			Timeout: timeout,
			Stream:  p.Stream,
		}
		p.Log.WithField("command", cmd.String()).Debug("installing dependencies")

		res, err := p.Runner.Run(ctx, cmd)
		if err != nil {
			p.Log.WithField("output", res.PrimaryOutput()).Debug("dependency command failed")
			return fmt.Errorf("%w: %s: %v", recklesserrors.ErrDependencyInstall, cmd, err)
		}
	}
	return nil
}
