package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newTestCommand() *Command {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("name", "", "a name")

	return &Command{
		Flags: fs,
		Usage: "test [flags]",
		Short: "a test command",
		Exec: func(_ context.Context, stdout, _ io.Writer, args []string) error {
			_, _ = stdout.Write([]byte("ran"))

			return nil
		},
	}
}

func Test_Command_Run_Help_Flag_Prints_Usage_And_Exits_Zero(t *testing.T) {
	c := newTestCommand()

	var stdout, stderr bytes.Buffer

	code := c.Run(context.Background(), &stdout, &stderr, []string{"--help"})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "test [flags]")
	require.Empty(t, stderr.String())
}

func Test_Command_Run_Unknown_Flag_Exits_With_Usage_Code(t *testing.T) {
	c := newTestCommand()

	var stdout, stderr bytes.Buffer

	code := c.Run(context.Background(), &stdout, &stderr, []string{"--nope"})
	require.Equal(t, ExitUsage, code)
	require.Contains(t, stderr.String(), "error:")
}

func Test_Command_Run_Exec_Error_Exits_One(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := &Command{
		Flags: fs,
		Usage: "test",
		Short: "fails",
		Exec: func(context.Context, io.Writer, io.Writer, []string) error {
			return errors.New("boom")
		},
	}

	var stdout, stderr bytes.Buffer

	code := c.Run(context.Background(), &stdout, &stderr, nil)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "boom")
}

func Test_Command_Run_Success_Invokes_Exec(t *testing.T) {
	c := newTestCommand()

	var stdout, stderr bytes.Buffer

	code := c.Run(context.Background(), &stdout, &stderr, nil)
	require.Equal(t, 0, code)
	require.Equal(t, "ran", stdout.String())
	require.Empty(t, stderr.String())
}
