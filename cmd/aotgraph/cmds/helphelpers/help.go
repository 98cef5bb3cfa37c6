package helphelpers

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Prepare prepares cmd flag set for the invocation of its usage function by
// hiding flags that we want cobra to parse but we don't want to show to the
// user.
// The recovery flags live on the root command so that they can be given in
// any position, but only some subcommands read them.
//
// For example:
//
//	aotgraph --follow-thunks locate image metadata
//
// must parse successfully even though locate never binds a method.
//
// Prepare is a destructive command, cmd can not be reused after it has been
// called.
func Prepare(cmd *cobra.Command) {
	switch cmd.Name() {
	case "aotgraph", "help", "version":
		hideAllFlags(cmd)
	case "dump":
		// All flags apply
	case "config":
		hideFlag(cmd, "code-registration")
		hideFlag(cmd, "metadata-registration")
	case "locate", "find":
		hideFlag(cmd, "follow-thunks")
		hideFlag(cmd, "max-thunk-hops")
	}
}

func hideAllFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		flag.Hidden = true
	})
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Hidden = true
	})
}

func hideFlag(cmd *cobra.Command, name string) {
	if cmd == nil {
		return
	}
	flag := cmd.Flags().Lookup(name)
	if flag != nil {
		flag.Hidden = true
		return
	}
	hideFlag(cmd.Parent(), name)
}
