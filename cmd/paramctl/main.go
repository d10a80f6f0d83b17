// paramctl edits device paramsets and direct links from the terminal.
// Every change goes through an edit session and is confirmed before it
// is written.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/urmzd/homai-panel/pkg/clientcfg"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/form"
	"github.com/urmzd/homai-panel/pkg/i18n"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

// app holds the state shared by all commands.
type app struct {
	configPath string
	server     string
	entry      string
	iface      string
	transport  string
	lang       string
	timeout    time.Duration
	debug      bool
	yes        bool

	cfg    clientcfg.Config
	client *rpc.Client
	tr     *i18n.Catalog
	ask    *prompt

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "paramctl",
		Short:         "Homai paramset editor",
		Long:          "Command-line panel for editing device paramsets and direct links of a Homai backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Client config file (default: ~/.config/homai/panel.yaml)")
	flags.StringVar(&a.server, "server", "", "Backend URL")
	flags.StringVar(&a.entry, "entry", "", "Integration entry id")
	flags.StringVar(&a.iface, "interface", "", "Interface id")
	flags.StringVar(&a.transport, "transport", "", "Transport: http or ws")
	flags.StringVar(&a.lang, "lang", "", "Display language, e.g. de or en")
	flags.DurationVar(&a.timeout, "timeout", 0, "Timeout of a single remote call")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	flags.BoolVarP(&a.yes, "yes", "y", false, "Answer yes to every confirmation")

	rootCmd.AddCommand(
		a.devicesCmd(),
		a.showCmd(),
		a.setCmd(),
		a.resetCmd(),
		a.historyCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.linksCmd(),
		a.linkCmd(),
		a.configCmd(),
	)
	return rootCmd
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs one command line and releases the client afterwards.
func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	err := cmd.ExecuteContext(ctx)
	if cerr := a.teardown(); err == nil {
		err = cerr
	}
	return err
}

// setup loads the configuration, applies flag overrides and creates the
// backend client.
func (a *app) setup(cmd *cobra.Command) error {
	a.in, a.out, a.errOut = cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if a.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := clientcfg.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server = a.server
	}
	if flags.Changed("entry") {
		cfg.EntryID = a.entry
	}
	if flags.Changed("interface") {
		cfg.InterfaceID = a.iface
	}
	if flags.Changed("transport") {
		cfg.Transport = a.transport
	}
	if flags.Changed("lang") {
		cfg.Language = a.lang
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.timeout
	}

	if a.tr, err = cfg.Localizer(); err != nil {
		return err
	}
	if a.client, err = cfg.Dial(); err != nil {
		return err
	}
	a.cfg = cfg
	log.Debug().
		Str("server", cfg.Server).
		Str("transport", cfg.Transport).
		Str("entry", cfg.EntryID).
		Str("language", a.tr.Language()).
		Msg("Client configured")
	return nil
}

func (a *app) teardown() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// options wires the terminal collaborators into an editor.
func (a *app) options() []editor.Option {
	return []editor.Option{
		editor.WithConfirmer(a.confirmer()),
		editor.WithNotifier(editor.NotifyFunc(func(message string) {
			fmt.Fprintln(a.errOut, message)
		})),
		editor.WithLocalizer(a.tr),
	}
}

func (a *app) confirmer() editor.Confirmer {
	if a.yes {
		return editor.AlwaysConfirm
	}
	if a.ask == nil {
		a.ask = &prompt{in: a.in, out: a.errOut}
	}
	return a.ask
}

func (a *app) labels() form.Labels {
	return form.Labels{
		Modified: a.tr.T("form.modified", nil),
		Short:    a.tr.T("group.short", nil),
		Long:     a.tr.T("group.long", nil),
		Common:   a.tr.T("group.common", nil),
	}
}
