package tarnctlcli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Run is tarnctl's entry point. Returns the process exit code. sigCh
// may be nil when signal handling isn't needed (e.g. in tests).
func Run(_ io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := pflag.NewFlagSet("tarnctl", pflag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagRoot := globalFlags.String("storage-root", "", "Override the DiskDict `root` directory")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)
		return 1
	}

	cfg, err := LoadConfig(LoadConfigInput{
		ConfigPath:          *flagConfig,
		StorageRootOverride: *flagRoot,
		Env:                 env,
	})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	commands := allCommands(cfg)
	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)
		return 0
	}

	if len(commandAndArgs) == 0 {
		fmt.Fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)
		return 1
	}

	cmdName := commandAndArgs[0]
	cmd, ok := commandMap[cmdName]
	if !ok {
		fmt.Fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)
		return 1
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		if exitCode != 0 {
			return exitCode
		}
		return cmdIO.Finish()
	case <-sigCh:
		fmt.Fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fmt.Fprintln(errOut, "graceful shutdown ok (130)")
		return 130
	case <-time.After(5 * time.Second):
		fmt.Fprintln(errOut, "graceful shutdown timed out, forced exit (130)")
		return 130
	case <-sigCh:
		fmt.Fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")
		return 130
	}
}

func allCommands(cfg Config) []*Command {
	return []*Command{
		putCmd(cfg),
		getCmd(cfg),
		lsCmd(cfg),
		gcCmd(cfg),
	}
}

func printUsage(w io.Writer, commands []*Command) {
	fmt.Fprintln(w, "tarnctl: a content-addressed storage client")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: tarnctl [global flags] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintln(w, cmd.HelpLine())
	}
	fmt.Fprintln(w)
	printGlobalOptions(w)
}

func printGlobalOptions(w io.Writer) {
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprintln(w, "  -h, --help              Show help")
	fmt.Fprintln(w, "  -c, --config file       Use specified config file")
	fmt.Fprintln(w, "      --storage-root root Override the DiskDict root directory")
}
