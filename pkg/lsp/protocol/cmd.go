package protocol

import (
	"context"
	"os/exec"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// CmdClient is a jrpc2 client talking LSP framing to a child process over
// its stdin and stdout.
type CmdClient struct {
	*jrpc2.Client
	cmd  *exec.Cmd
	done chan error
}

// NewCmdClient starts cmd and connects a client to it. The child's stderr
// goes to the context logger unless cmd.Stderr is already set.
func NewCmdClient(ctx context.Context, cmd *exec.Cmd, copts *jrpc2.ClientOptions) (*CmdClient, error) {
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Errorf("getting stdout pipe: %w", err)
	}
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Errorf("getting stdin pipe: %w", err)
	}
	if cmd.Stderr == nil {
		cmd.Stderr = zerolog.Ctx(ctx).With().Str("stream", "stderr").Str("cmd", cmd.Path).Logger()
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Errorf("starting %s: %w", cmd.Path, err)
	}

	c := &CmdClient{
		Client: jrpc2.NewClient(channel.LSP(out, in), copts),
		cmd:    cmd,
		done:   make(chan error, 1),
	}

	go func() {
		c.done <- cmd.Wait()
		close(c.done)
	}()

	return c, nil
}

// Done is closed after the process exits.
func (c *CmdClient) Done() <-chan error {
	return c.done
}

// Close closes the connection and waits up to grace for the process to
// exit before killing it.
func (c *CmdClient) Close(grace time.Duration) error {
	cerr := c.Client.Close()

	select {
	case <-c.done:
	case <-time.After(grace):
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		<-c.done
	}

	if cerr != nil {
		return errors.Errorf("closing client: %w", cerr)
	}
	return nil
}
