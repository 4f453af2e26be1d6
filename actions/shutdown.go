package actions

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

//Runner executes one command, swapped in tests
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

//PowerOff runs the configured commands in order, stopping at the first failure
type PowerOff struct {
	Commands [][]string
	Run      Runner
	Log      *logrus.Entry
}

func (p *PowerOff) Execute(ctx context.Context) error {
	run := p.Run
	if run == nil {
		run = execRunner
	}
	for _, cmd := range p.Commands {
		if len(cmd) == 0 {
			continue
		}
		p.Log.WithField("command", strings.Join(cmd, " ")).Info("Running power off command")
		out, err := run(ctx, cmd[0], cmd[1:]...)
		if err != nil {
			return fmt.Errorf("%s: %w (%s)", cmd[0], err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}
