package cmds

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/go-delve/aotgraph/cmd/aotgraph/cmds/helphelpers"
	"github.com/go-delve/aotgraph/pkg/config"
	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/program"
	"github.com/go-delve/aotgraph/pkg/revision"
	"github.com/go-delve/aotgraph/pkg/typegraph"
	"github.com/go-delve/aotgraph/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string

	// rev overrides the revision read from the metadata header.
	rev revision.Revision
	// literal is the module name searched for to find the code registration.
	literal string
	// workers bounds the number of literal matches followed in parallel.
	workers int
	// followThunks binds methods to the target of their jmp thunks.
	followThunks bool
	maxThunkHops int

	// explicit registration roots, used instead of scanning
	codeRegistration     uint64
	metadataRegistration uint64

	// dump flags
	assemblyName string
	symbols      bool

	// save is whether 'config' writes the configuration file.
	save bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config

	loadConfig = config.LoadConfig
	saveConfig = config.SaveConfig
)

const aotgraphCommandLongDesc = `aotgraph recovers the type graph of an ahead-of-time compiled program.

It takes the native image and the metadata blob shipped next to it, finds the
registration structures the runtime uses at startup and rebuilds every
assembly, type, field and method, with the native address of each compiled
method.

The layout revision is read from the metadata header. Revisions 24.x and 29.1
cannot be told apart by the header alone; use --revision to force one.`

// New returns an initialized command tree. When docCall is set the tree is
// built for documentation generation and the user configuration is neither
// read nor created.
func New(docCall bool) *cobra.Command {
	if docCall {
		return newCommand(&config.Config{})
	}
	// Config setup and load.
	return newCommand(loadConfig())
}

func newCommand(c *config.Config) *cobra.Command {
	conf = c
	rev = revision.Revision{}
	if r, err := conf.Revision(); err != nil {
		logflags.WriteError(fmt.Sprintf("ignoring configuration: %v", err))
	} else {
		rev = r
	}

	// Main aotgraph root command.
	rootCommand = &cobra.Command{
		Use:           "aotgraph",
		Short:         "aotgraph recovers types and methods from AOT compiled images.",
		Long:          aotgraphCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logflags.Setup(log, logOutput, logDest)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logflags.Close()
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output: locator, loader, resolver, binder.`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor.")

	rootCommand.PersistentFlags().Var(revision.Value{Rev: &rev}, "revision", "Layout revision, e.g. 24.5 or 29.1, overriding the metadata header.")
	rootCommand.PersistentFlags().StringVar(&literal, "literal", conf.Literal(), "Name of the last code generation module.")
	rootCommand.PersistentFlags().IntVar(&workers, "workers", conf.Workers(), "Number of literal matches followed in parallel.")
	rootCommand.PersistentFlags().BoolVar(&followThunks, "follow-thunks", conf.FollowThunks, "Bind methods to the target of their jmp thunks.")
	rootCommand.PersistentFlags().IntVar(&maxThunkHops, "max-thunk-hops", conf.ThunkHops(), "Maximum number of thunks followed for one method.")
	rootCommand.PersistentFlags().Uint64Var(&codeRegistration, "code-registration", 0, "Address of the code registration; requires --metadata-registration.")
	rootCommand.PersistentFlags().Uint64Var(&metadataRegistration, "metadata-registration", 0, "Address of the metadata registration; requires --code-registration.")

	// 'dump' subcommand.
	dumpCommand := &cobra.Command{
		Use:   "dump <image> <metadata>",
		Short: "Print the recovered assemblies, types and members.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := open(args)
			if err != nil {
				return err
			}
			if symbols {
				return dumpSymbols(cmd.OutOrStdout(), p.Graph)
			}
			return dump(cmd.OutOrStdout(), p, assemblyName)
		},
	}
	dumpCommand.Flags().StringVar(&assemblyName, "assembly", "", "Only print the assembly with this name or image name.")
	dumpCommand.Flags().BoolVar(&symbols, "symbols", false, "Print the address of every compiled method instead.")
	rootCommand.AddCommand(dumpCommand)

	// 'locate' subcommand.
	locateCommand := &cobra.Command{
		Use:   "locate <image> <metadata>",
		Short: "Print the addresses of the registration roots.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := open(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "revision:              %s\n", p.Revision)
			fmt.Fprintf(out, "code registration:     %#x\n", p.Tables.CodeAddr)
			fmt.Fprintf(out, "metadata registration: %#x\n", p.Tables.MetadataAddr)
			fmt.Fprintf(out, "image:                 %s, %d sections\n", humanize.Bytes(uint64(len(p.Image.Data()))), len(p.Image.Sections))
			fmt.Fprintf(out, "modules:               %s\n", humanize.Comma(int64(len(p.Tables.Modules))))
			fmt.Fprintf(out, "type references:       %s\n", humanize.Comma(int64(len(p.Tables.Types))))
			return nil
		},
	}
	rootCommand.AddCommand(locateCommand)

	// 'find' subcommand.
	findCommand := &cobra.Command{
		Use:   "find <image> <metadata> <prefix>",
		Short: "Print the types whose full name starts with prefix.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := open(args[:2])
			if err != nil {
				return err
			}
			for _, t := range p.Graph.FindPrefix(args[2]) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.FullName(), t.Assembly.Name)
			}
			return nil
		},
	}
	rootCommand.AddCommand(findCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aotgraph\nVersion: %s\n", version.AotgraphVersion)
			if log {
				fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			}
		},
	}
	rootCommand.AddCommand(versionCommand)

	// 'config' subcommand.
	configCommand := &cobra.Command{
		Use:   "config",
		Short: "Print the configuration in effect.",
		Long: `Print the configuration in effect once command line flags are applied.

With --save the result is written to the configuration file, so that the flags
given here become the defaults of later runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := effectiveConfig()
			out, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			cmd.OutOrStdout().Write(out)
			if save {
				return saveConfig(c)
			}
			return nil
		},
	}
	configCommand.Flags().BoolVar(&save, "save", false, "Write the configuration file.")
	rootCommand.AddCommand(configCommand)

	for _, cmd := range rootCommand.Commands() {
		cmd.Aliases = append(cmd.Aliases, conf.Aliases[cmd.Name()]...)
	}

	defaultHelp := rootCommand.HelpFunc()
	rootCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helphelpers.Prepare(cmd)
		defaultHelp(cmd, args)
	})

	return rootCommand
}

// effectiveConfig returns the loaded configuration with the values of the
// command line flags.
func effectiveConfig() *config.Config {
	c := *conf
	c.CodeRegistrationLiteral = literal
	c.ScanWorkers = workers
	c.FollowThunks = followThunks
	c.MaxThunkHops = maxThunkHops
	if !rev.IsZero() {
		c.RevisionOverride = rev.String()
	}
	return &c
}

func open(args []string) (*program.Program, error) {
	if (codeRegistration == 0) != (metadataRegistration == 0) {
		return nil, fmt.Errorf("--code-registration and --metadata-registration must be used together")
	}
	p, err := program.Open(args[0], args[1], program.Options{
		Literal:              literal,
		Workers:              workers,
		FollowThunks:         followThunks,
		MaxThunkHops:         maxThunkHops,
		Revision:             rev,
		StringCacheSize:      conf.CacheSize(),
		CodeRegistration:     codeRegistration,
		MetadataRegistration: metadataRegistration,
	})
	if err != nil {
		if kind := fault.Kind(err); kind != "" {
			return nil, fmt.Errorf("%s: %v", kind, err)
		}
		return nil, err
	}
	return p, nil
}

func dump(out io.Writer, p *program.Program, only string) error {
	g := p.Graph
	assemblies := g.Assemblies
	if only != "" {
		a, ok := g.Assembly(only)
		if !ok {
			return fmt.Errorf("no assembly named %q", only)
		}
		assemblies = []*typegraph.Assembly{a}
	}
	for _, a := range assemblies {
		methods := 0
		for _, t := range a.Types {
			methods += len(t.Methods)
		}
		fmt.Fprintf(out, "// %s (%s types, %s methods)\n", a.FullName(), humanize.Comma(int64(len(a.Types))), humanize.Comma(int64(methods)))
		for _, t := range a.Types {
			dumpType(out, t)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func typeName(t typegraph.Type, ok bool) string {
	if !ok {
		return "?"
	}
	return t.FullName()
}

func kindOf(t *typegraph.TypeDef) string {
	switch {
	case t.IsEnum():
		return "enum"
	case t.IsValueType():
		return "struct"
	}
	return "class"
}

func dumpType(out io.Writer, t *typegraph.TypeDef) {
	fmt.Fprintf(out, "%s %s", kindOf(t), t.FullName())
	if parent, ok := t.Parent(); ok {
		fmt.Fprintf(out, " : %s", parent.FullName())
	}
	if sz, ok := t.Sizes(); ok && sz.InstanceSize > 0 {
		fmt.Fprintf(out, " // %s", humanize.IBytes(uint64(sz.InstanceSize)))
	}
	fmt.Fprintln(out, " {")

	for _, f := range t.Fields {
		fmt.Fprint(out, "\t")
		if off, ok := f.Offset(); ok && !f.IsStatic() {
			fmt.Fprintf(out, "/* %#x */ ", off)
		}
		if f.IsStatic() {
			fmt.Fprint(out, "static ")
		}
		fmt.Fprintf(out, "%s %s", typeName(f.Type()), f.Name)
		if f.HasFieldRVA() {
			if off, size, ok := f.RawInitializer(); ok {
				fmt.Fprintf(out, " // rva data %#x, %s", off, humanize.IBytes(uint64(size)))
			}
		} else if v, ok, err := f.Default(); err != nil {
			fmt.Fprintf(out, " // bad default: %v", err)
		} else if ok {
			fmt.Fprintf(out, " = %#v", v)
		}
		fmt.Fprintln(out, ";")
	}

	for _, m := range t.Methods {
		fmt.Fprint(out, "\t")
		if m.HasAddress {
			fmt.Fprintf(out, "/* %#x */ ", m.Address)
		}
		fmt.Fprintf(out, "%s %s(", typeName(m.ReturnType()), m.Name)
		for i, prm := range m.Parameters {
			if i > 0 {
				fmt.Fprint(out, ", ")
			}
			fmt.Fprintf(out, "%s %s", typeName(prm.Type()), prm.Name)
			if v, ok, err := prm.Default(); err == nil && ok {
				fmt.Fprintf(out, " = %#v", v)
			}
		}
		fmt.Fprintln(out, ");")
	}
	fmt.Fprintln(out, "}")
}

func dumpSymbols(out io.Writer, g *typegraph.Graph) error {
	syms := g.Symbols()
	names := make([]string, 0, len(syms))
	for name := range syms {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if syms[names[i]] != syms[names[j]] {
			return syms[names[i]] < syms[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(out, "%#x %s\n", syms[name], name)
	}
	return nil
}
