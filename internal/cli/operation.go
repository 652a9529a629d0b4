package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/store"
)

// OperationDetail is the output of "operation show".
type OperationDetail struct {
	Operation   ir.Operation    `json:"operation"`
	Transitions []ir.Transition `json:"transitions"`
}

// NewOperationCommand creates the operation command group.
func NewOperationCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operation",
		Short: "Inspect and resume journaled operations",
		Long: `Every create and delete request is recorded in the operation journal,
together with the state transitions of the waits on it. Operations issued
with --no-wait can be resumed with "operation wait".`,
	}
	cmd.AddCommand(newOperationListCommand(rootOpts))
	cmd.AddCommand(newOperationShowCommand(rootOpts))
	cmd.AddCommand(newOperationWaitCommand(rootOpts))
	return cmd
}

func newOperationListCommand(rootOpts *RootOptions) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled operations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if top < 0 {
				return NewExitError(ExitCommandError, "--top must be non-negative")
			}
			s, err := newSession(cmd, rootOpts, journalRequired)
			if err != nil {
				return err
			}
			defer s.Close()

			ops, err := s.store.ListOperations(cmd.Context(), top)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list operations", err)
			}
			return s.out.Print(ops)
		},
	}
	cmd.Flags().IntVar(&top, "top", 20, "maximum number of operations (0 for all)")
	return cmd
}

func newOperationShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <operation-id>",
		Short: "Show an operation and the transitions of its last wait",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, rootOpts, journalRequired)
			if err != nil {
				return err
			}
			defer s.Close()

			op, err := readOperation(cmd, s, args[0])
			if err != nil {
				return err
			}

			detail := OperationDetail{Operation: op, Transitions: []ir.Transition{}}
			if op.WaitID != "" {
				detail.Transitions, err = s.store.ReadTransitions(cmd.Context(), op.WaitID)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read transitions", err)
				}
			}
			return s.out.Print(detail)
		},
	}
}

func newOperationWaitCommand(rootOpts *RootOptions) *cobra.Command {
	var wf waitFlags

	cmd := &cobra.Command{
		Use:   "wait <operation-id>",
		Short: "Wait for a journaled operation to finish",
		Long: `Wait for an operation issued with --no-wait.

The condition defaults to the one implied by the request: --created for
PUT, --deleted for DELETE. A condition flag overrides it.`,
		Example: `  azwait operation wait $OP
  azwait operation wait $OP --exists properties.vaultUri --timeout 600`,
		Args: wf.positionalArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := wf.operands(args)[0]
			if err := wf.validateTiming(); err != nil {
				return err
			}
			s, err := newSession(cmd, rootOpts, journalRequired)
			if err != nil {
				return err
			}
			defer s.Close()

			op, err := readOperation(cmd, s, id)
			if err != nil {
				return err
			}
			implied, err := ir.ConditionForMethod(op.Method)
			if err != nil && !wf.anySet() {
				return WrapExitError(ExitCommandError, conditionUsage, err)
			}
			cond, err := wf.condition(&implied)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd, s.logger)
			defer cancel()

			out, err := s.wait(ctx, op.Handle, cond, &wf, op.ID)
			if err != nil {
				return err
			}
			return s.finishWait(out, cond.Kind != ir.ConditionDeleted)
		},
	}
	wf.register(cmd)
	return cmd
}

func readOperation(cmd *cobra.Command, s *session, id string) (ir.Operation, error) {
	op, err := s.store.ReadOperation(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ir.Operation{}, NewExitError(ExitFailure, fmt.Sprintf("operation %q not found", id))
	}
	if err != nil {
		return ir.Operation{}, WrapExitError(ExitFailure, "failed to read operation", err)
	}
	return op, nil
}
