package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Azure/azure-cli-sub020/internal/arm"
	"github.com/Azure/azure-cli-sub020/internal/engine"
	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// EnvSubscription supplies --subscription when the flag is not given.
const EnvSubscription = "AZURE_SUBSCRIPTION_ID"

// handleFlags identify a resource either by --ids or by the
// name+group+provider tuple. With multi set, --ids takes several IDs.
type handleFlags struct {
	ids           []string
	subscription  string
	resourceGroup string
	name          string
	namespace     string
	resourceType  string

	multi bool
}

func (f *handleFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	idsUsage := "resource ID"
	if f.multi {
		idsUsage = "one or more resource IDs, comma-separated or repeated"
	}
	fl.StringSliceVar(&f.ids, "ids", nil, idsUsage)
	fl.StringVar(&f.subscription, "subscription", "", "subscription ID (default $"+EnvSubscription+")")
	fl.StringVarP(&f.resourceGroup, "resource-group", "g", "", "resource group name")
	fl.StringVarP(&f.name, "name", "n", "", "resource name")
	fl.StringVar(&f.namespace, "namespace", "", "provider namespace, e.g. Microsoft.KeyVault")
	fl.StringVar(&f.resourceType, "resource-type", "", "resource type, e.g. vaults")
}

// handle builds the single resource handle the flags name.
func (f *handleFlags) handle() (ir.Handle, error) {
	hs, err := f.handles()
	if err != nil {
		return ir.Handle{}, err
	}
	if len(hs) != 1 {
		return ir.Handle{}, NewExitError(ExitCommandError, "incorrect usage: --ids takes a single resource ID for this command")
	}
	return hs[0], nil
}

// handles builds every resource handle the flags name, in --ids order.
func (f *handleFlags) handles() ([]ir.Handle, error) {
	tuple := f.resourceGroup != "" || f.name != "" || f.namespace != "" || f.resourceType != ""
	if len(f.ids) > 0 {
		if tuple {
			return nil, NewExitError(ExitCommandError,
				"incorrect usage: --ids cannot be combined with --resource-group, --name, --namespace or --resource-type")
		}
		hs := make([]ir.Handle, 0, len(f.ids))
		for _, id := range f.ids {
			h, err := ir.NewHandle(id)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, "invalid --ids", err)
			}
			hs = append(hs, h)
		}
		return hs, nil
	}
	if !tuple {
		return nil, NewExitError(ExitCommandError,
			"incorrect usage: --ids ID | --resource-group RG --name NAME --namespace NS --resource-type TYPE")
	}

	sub := f.subscription
	if sub == "" {
		sub = os.Getenv(EnvSubscription)
	}
	h, err := ir.HandleFromParts(ir.HandleParts{
		Subscription:  sub,
		ResourceGroup: f.resourceGroup,
		Namespace:     f.namespace,
		Type:          f.resourceType,
		Name:          f.name,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "incorrect usage", err)
	}
	return []ir.Handle{h}, nil
}

// NewResourceCommand creates the resource command group.
func NewResourceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Show, create, delete and wait on resources",
	}
	cmd.AddCommand(newResourceShowCommand(rootOpts))
	cmd.AddCommand(newResourceCreateCommand(rootOpts))
	cmd.AddCommand(newResourceDeleteCommand(rootOpts))
	cmd.AddCommand(newResourceWaitCommand(rootOpts))
	return cmd
}

func newResourceShowCommand(rootOpts *RootOptions) *cobra.Command {
	var hf handleFlags

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a resource",
		Example: `  azwait resource show --ids /subscriptions/{sub}/resourceGroups/rg/providers/Microsoft.KeyVault/vaults/v1
  azwait resource show -g rg -n v1 --namespace Microsoft.KeyVault --resource-type vaults --query properties.vaultUri`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hf.handle()
			if err != nil {
				return err
			}
			s, err := newSession(cmd, rootOpts, journalOptional)
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := s.client.Poll(cmd.Context(), h)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to show resource", err)
			}
			return s.out.Print(snap)
		},
	}
	hf.register(cmd)
	return cmd
}

func newResourceCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		hf     handleFlags
		body   string
		noWait bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or replace a resource",
		Long: `Create or replace a resource with a PUT request.

Without --no-wait the command waits until the resource reports
provisioningState Succeeded and prints it. With --no-wait it returns as soon
as the request is accepted; use "azwait operation wait" or
"azwait resource wait --created" to wait later.

The body may be JSON with comments, given inline or as @FILE.`,
		Example: `  azwait resource create --ids $ID --body @vault.json
  azwait resource create --ids $ID --body '{"location": "westus"}' --no-wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hf.handle()
			if err != nil {
				return err
			}
			payload, err := readBody(body)
			if err != nil {
				return err
			}
			return runMutation(cmd, rootOpts, h, "PUT", payload, noWait)
		},
	}
	hf.register(cmd)
	cmd.Flags().StringVar(&body, "body", "", "request body, inline JSON or @FILE (required)")
	_ = cmd.MarkFlagRequired("body")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "do not wait for the long-running operation to finish")
	return cmd
}

func newResourceDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		hf     handleFlags
		noWait bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a resource",
		Long: `Delete a resource with a DELETE request.

Without --no-wait the command waits until the resource is gone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hf.handle()
			if err != nil {
				return err
			}
			return runMutation(cmd, rootOpts, h, "DELETE", nil, noWait)
		},
	}
	hf.register(cmd)
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "do not wait for the long-running operation to finish")
	return cmd
}

// runMutation issues a PUT or DELETE, journals it, and waits for the
// condition the method implies unless noWait is set.
func runMutation(cmd *cobra.Command, rootOpts *RootOptions, h ir.Handle, method string, payload []byte, noWait bool) error {
	cond, err := ir.ConditionForMethod(method)
	if err != nil {
		return WrapExitError(ExitCommandError, "unsupported method", err)
	}

	s, err := newSession(cmd, rootOpts, journalOptional)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(cmd, s.logger)
	defer cancel()

	var resp arm.Response
	switch method {
	case "PUT":
		resp, err = s.client.Put(ctx, h, payload)
	default:
		resp, err = s.client.Delete(ctx, h)
	}
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s %s failed", method, h), err)
	}

	op := ir.Operation{
		ID:             s.ids.Generate(),
		Method:         method,
		Handle:         h,
		StatusCode:     resp.StatusCode,
		AsyncOperation: resp.AsyncOperation,
		NoWait:         noWait,
		IssuedAt:       s.clock.Now(),
	}
	s.recordOperation(ctx, op)
	s.logger.Info("request accepted",
		"operation_id", op.ID,
		"method", method,
		"handle", h.String(),
		"status", resp.StatusCode,
	)

	if noWait {
		s.out.VerboseLog("operation %s accepted; run \"azwait operation wait %s\" to wait for it", op.ID, op.ID)
		return nil
	}

	out, err := s.wait(ctx, h, cond, nil, op.ID)
	if err != nil {
		return err
	}
	return s.finishWait(out, method == "PUT")
}

func newResourceWaitCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		hf = handleFlags{multi: true}
		wf waitFlags
	)

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Place the CLI in a waiting state until a condition is met",
		Long: `Poll a resource until a condition is met.

Exactly one of --created, --updated, --deleted, --exists or --custom is
required. --exists takes an optional path, as --exists PATH or
--exists=PATH. --custom takes PATH=VALUE, where VALUE is compared as JSON
when it parses as JSON, or a JMESPath expression that must become truthy.

With several --ids the resources are polled concurrently, each with its own
deadline. The command succeeds only if every wait is satisfied; otherwise it
reports each unsatisfied wait and exits with the code of the worst outcome.`,
		Example: `  azwait resource wait --ids $ID --created
  azwait resource wait --ids $ID --deleted --timeout 600
  azwait resource wait --ids $ID --exists properties.vaultUri
  azwait resource wait --ids $ID1,$ID2 --updated
  azwait resource wait --ids $ID --custom "properties.state=Ready" --interval 10`,
		Args: wf.positionalArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			handles, err := hf.handles()
			if err != nil {
				return err
			}
			cond, err := wf.condition(nil)
			if err != nil {
				return err
			}

			s, err := newSession(cmd, rootOpts, journalOptional)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext(cmd, s.logger)
			defer cancel()

			if len(handles) == 1 {
				out, err := s.wait(ctx, handles[0], cond, &wf, "")
				if err != nil {
					return err
				}
				return s.finishWait(out, true)
			}

			targets := make([]engine.Target, len(handles))
			for i, h := range handles {
				targets[i] = engine.Target{Handle: h, Condition: cond}
			}
			outcomes, err := s.waitAll(ctx, targets, &wf)
			if err != nil {
				return err
			}
			return s.finishWaitAll(outcomes)
		},
	}
	hf.register(cmd)
	wf.register(cmd)
	return cmd
}

// readBody returns the --body value, reading @FILE, normalized to compact JSON.
func readBody(body string) ([]byte, error) {
	raw := []byte(body)
	if path, ok := strings.CutPrefix(body, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read --body file", err)
		}
		raw = data
	}
	payload, err := arm.NormalizeBody(raw)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --body", err)
	}
	return payload, nil
}

var _ engine.Poller = (*arm.Client)(nil)
