package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Azure/azure-cli-sub020/internal/engine"
	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// conditionUsage is the usage error for a missing or ambiguous condition.
const conditionUsage = "incorrect usage: --created | --updated | --deleted | --exists | --custom JMESPATH"

// waitFlags are the condition and timing flags of the wait commands.
type waitFlags struct {
	created bool
	updated bool
	deleted bool
	exists  string
	custom  string

	// Seconds; zero keeps the configured value.
	timeout     int
	interval    int
	maxInterval int

	cmd *cobra.Command

	// existsAt counts the positionals parsed before --exists; a bare
	// --exists may claim the positional at that index as its path.
	existsAt  int
	claimed   bool
	claimedAt int
}

// existsValue backs --exists. pflag never lets an optional-value flag take
// the following word, so Set records where in the positionals it stood.
type existsValue struct {
	f     *waitFlags
	flags *pflag.FlagSet
}

func (v existsValue) String() string { return v.f.exists }
func (v existsValue) Type() string { return "string" }

func (v existsValue) Set(s string) error {
	v.f.exists = s
	v.f.existsAt = len(v.flags.Args())
	return nil
}

func (f *waitFlags) register(cmd *cobra.Command) {
	f.cmd = cmd
	fl := cmd.Flags()
	fl.BoolVar(&f.created, "created", false, "wait until the resource is created with provisioningState Succeeded")
	fl.BoolVar(&f.updated, "updated", false, "wait until the resource is updated with provisioningState Succeeded")
	fl.BoolVar(&f.deleted, "deleted", false, "wait until the resource is deleted")
	fl.Var(existsValue{f: f, flags: fl}, "exists", "wait until the resource, or the property at --exists PATH, exists")
	fl.Lookup("exists").NoOptDefVal = ir.RootPath
	fl.StringVar(&f.custom, "custom", "", "wait until PATH=VALUE holds, or the JMESPath expression is truthy")
	fl.IntVar(&f.timeout, "timeout", 0, "maximum wait in seconds (default from configuration, 3600)")
	fl.IntVar(&f.interval, "interval", 0, "polling interval in seconds (default from configuration, 30)")
	fl.IntVar(&f.maxInterval, "max-interval", 0, "maximum polling interval in seconds (default from configuration, 60)")
}

// positionalArgs accepts exactly reserved positionals, plus one more after
// a bare --exists: the first positional parsed after it is the path.
func (f *waitFlags) positionalArgs(reserved int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		f.claimed = false
		if len(args) == reserved+1 && f.existsSet() && f.exists == ir.RootPath && f.existsAt < len(args) {
			f.exists = args[f.existsAt]
			f.claimed, f.claimedAt = true, f.existsAt
			return nil
		}
		return cobra.ExactArgs(reserved)(cmd, args)
	}
}

// operands returns args without the word taken as the --exists path.
func (f *waitFlags) operands(args []string) []string {
	if !f.claimed {
		return args
	}
	rest := make([]string, 0, len(args)-1)
	rest = append(rest, args[:f.claimedAt]...)
	return append(rest, args[f.claimedAt+1:]...)
}

// anySet reports whether a condition flag was given.
func (f *waitFlags) anySet() bool {
	return f.created || f.updated || f.deleted || f.existsSet() || f.custom != ""
}

func (f *waitFlags) existsSet() bool {
	return f.cmd != nil && f.cmd.Flags().Changed("exists")
}

// condition builds the wait condition. Exactly one condition flag must be
// given unless fallback is non-nil, in which case no flag selects it.
func (f *waitFlags) condition(fallback *ir.Condition) (ir.Condition, error) {
	if err := f.validateTiming(); err != nil {
		return ir.Condition{}, err
	}

	var conds []ir.Condition
	if f.created {
		conds = append(conds, ir.Created())
	}
	if f.updated {
		conds = append(conds, ir.Updated())
	}
	if f.deleted {
		conds = append(conds, ir.Deleted())
	}
	if f.existsSet() {
		conds = append(conds, ir.Exists(f.exists))
	}
	if f.custom != "" {
		cond, err := ir.ParseCustom(f.custom)
		if err != nil {
			return ir.Condition{}, WrapExitError(ExitCommandError, "invalid --custom", err)
		}
		conds = append(conds, cond)
	}

	switch {
	case len(conds) == 0 && fallback != nil:
		return *fallback, nil
	case len(conds) != 1:
		return ir.Condition{}, NewExitError(ExitCommandError, conditionUsage)
	}

	if err := engine.ValidateCondition(conds[0]); err != nil {
		return ir.Condition{}, WrapExitError(ExitCommandError, "invalid condition", err)
	}
	return conds[0], nil
}

func (f *waitFlags) validateTiming() error {
	for name, v := range map[string]int{"timeout": f.timeout, "interval": f.interval, "max-interval": f.maxInterval} {
		if v < 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("--%s must be a non-negative number of seconds", name))
		}
	}
	return nil
}

// apply overrides the configured options with the timing flags.
func (f *waitFlags) apply(opts engine.Options) engine.Options {
	if f.timeout > 0 {
		opts.Timeout = time.Duration(f.timeout) * time.Second
	}
	if f.interval > 0 {
		opts.Backoff.Interval = time.Duration(f.interval) * time.Second
	}
	if f.maxInterval > 0 {
		opts.Backoff.MaxInterval = time.Duration(f.maxInterval) * time.Second
	}
	return opts
}
