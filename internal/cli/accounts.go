package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/client"
	"github.com/beamio-APP/BeamioContract/internal/config"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/registry"
)

// SystemView is the output of init.
type SystemView struct {
	client.System
}

func (v SystemView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "account deployer:    %s\n", v.AccountDeployer.Hex())
	fmt.Fprintf(&b, "registry:            %s\n", v.Registry.Hex())
	if v.Collections != chain.ZeroAddress {
		fmt.Fprintf(&b, "collection deployer: %s\n", v.CollectionDeployer.Hex())
		fmt.Fprintf(&b, "collections:         %s\n", v.Collections.Hex())
	}
	fmt.Fprintf(&b, "diamond:             %s", v.Diamond.Hex())
	names := make([]string, 0, len(v.Facets))
	for name := range v.Facets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  facet %s: %s", name, v.Facets[name].Hex())
	}
	return b.String()
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init <manifest>",
		Short: "Bootstrap a system from a manifest",
		Long: `Create the account deployer and registry, the optional collection
registry, and the diamond with every facet in the manifest, all in one
transaction sent by the manifest's admin.

The manifest may be YAML (.yaml, .yml), TOML (.toml) or CUE (.cue).

Examples:
  beamio init system.yaml
  beamio init system.cue --db ./ledger.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, args[0], cmd)
		},
	}
}

func runInit(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	m, err := config.LoadManifest(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load manifest", err)
	}
	setup, err := m.Resolve()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid manifest", err)
	}
	f.VerboseLog("bootstrapping from %s: %d paymasters, %d facets", path, len(setup.Paymasters), len(setup.Facets))

	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	sys, rcpt, err := c.Bootstrap(ctx, setup)
	if err != nil {
		return f.Revert("bootstrap failed", err)
	}
	return f.SuccessTx(rcpt.TxID, SystemView{sys})
}

// PredictView is the output of predict.
type PredictView struct {
	Creator chain.Address `json:"creator"`
	Index   uint64        `json:"index"`
	Address chain.Address `json:"address"`
}

func (v PredictView) String() string {
	return fmt.Sprintf("%s/%d -> %s", v.Creator.Hex(), v.Index, v.Address.Hex())
}

// PredictOptions holds flags for the predict command.
type PredictOptions struct {
	*RootOptions
	Index int64 // -1 means the creator's next index
}

// NewPredictCommand creates the predict command.
func NewPredictCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PredictOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "predict <creator>",
		Short: "Predict a creator's account address",
		Long: `Compute the CREATE2 address of a creator's account without deploying it.
Defaults to the creator's next issuance index.

Examples:
  beamio predict 0xAbC...
  beamio predict 0xAbC... --index 0`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Index, "index", -1, "issuance index (default: next index)")
	return cmd
}

func runPredict(opts *PredictOptions, creatorArg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	creator, err := parseAddress("creator", creatorArg)
	if err != nil {
		return err
	}
	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var index uint64
	if opts.Index >= 0 {
		index = uint64(opts.Index)
	} else if index, err = c.NextIndexOf(ctx, creator); err != nil {
		return f.Revert("predict failed", err)
	}
	addr, err := c.PredictAddress(ctx, creator, index)
	if err != nil {
		return f.Revert("predict failed", err)
	}
	return f.Success(PredictView{Creator: creator, Index: index, Address: addr})
}

// OutcomeView is the output of a provisioning call.
type OutcomeView struct {
	Address  chain.Address `json:"address"`
	Index    uint64        `json:"index"`
	Prior    string        `json:"prior"`
	Deployed bool          `json:"deployed"`
}

func newOutcomeView(out registry.Outcome) OutcomeView {
	return OutcomeView{Address: out.Address, Index: out.Index, Prior: out.Prior.String(), Deployed: out.Deployed}
}

func (v OutcomeView) String() string {
	action := "recorded"
	switch {
	case v.Deployed:
		action = "deployed and recorded"
	case v.Prior == registry.StateRegistered.String():
		action = "already provisioned"
	}
	return fmt.Sprintf("%s (index %d): %s, was %s", v.Address.Hex(), v.Index, action, v.Prior)
}

// ProvisionOptions holds flags for the provision command.
type ProvisionOptions struct {
	*RootOptions
	From string
	Next bool
	Self bool
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProvisionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "provision [creator]",
		Short: "Provision a creator's account",
		Long: `Provision a creator's primary account, idempotently. The sender must be
an authorized caller (a paymaster or the admin) unless --self is given, in
which case the sender provisions its own account.

With --next an additional account is provisioned at the creator's next
issuance index.

Exit codes:
  0 - Provisioned (or already provisioned)
  1 - The transaction reverted
  2 - Command error

Examples:
  beamio provision 0xAbC... --from 0xPaymaster...
  beamio provision 0xAbC... --from 0xPaymaster... --next
  beamio provision --self --from 0xAbC...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "sender address (required)")
	_ = cmd.MarkFlagRequired("from")
	cmd.Flags().BoolVar(&opts.Next, "next", false, "provision an additional account at the next index")
	cmd.Flags().BoolVar(&opts.Self, "self", false, "provision the sender's own account")
	cmd.MarkFlagsMutuallyExclusive("next", "self")

	return cmd
}

func runProvision(opts *ProvisionOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	from, err := parseAddress("sender", opts.From)
	if err != nil {
		return err
	}
	if opts.Self == (len(args) == 1) {
		return NewExitError(ExitCommandError, "give either a creator or --self")
	}

	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var (
		out  registry.Outcome
		rcpt *ledger.Receipt
	)
	switch {
	case opts.Self:
		out, rcpt, err = c.ProvisionSelf(ctx, from)
	default:
		creator, perr := parseAddress("creator", args[0])
		if perr != nil {
			return perr
		}
		if opts.Next {
			out, rcpt, err = c.ProvisionNext(ctx, from, creator)
		} else {
			out, rcpt, err = c.ProvisionFor(ctx, from, creator)
		}
	}
	if err != nil {
		return f.Revert("provisioning failed", err)
	}
	return f.SuccessTx(rcpt.TxID, newOutcomeView(out))
}

// StatusView is the output of status.
type StatusView struct {
	client.AccountStatus
}

func (v StatusView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "creator:    %s\n", v.Creator.Hex())
	fmt.Fprintf(&b, "state:      %s\n", v.State)
	fmt.Fprintf(&b, "predicted:  %s\n", v.Predicted.Hex())
	if v.Primary != chain.ZeroAddress {
		fmt.Fprintf(&b, "primary:    %s\n", v.Primary.Hex())
	}
	fmt.Fprintf(&b, "next index: %d of %d", v.NextIndex, v.Limit)
	for i, a := range v.Accounts {
		fmt.Fprintf(&b, "\n  [%d] %s", i, a.Hex())
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <creator>",
		Short: "Show where a creator's account stands",
		Long: `Report whether the creator's primary account is ABSENT, deployed but
unregistered (DEPLOYED_UNREGISTERED) or REGISTERED, along with every
account recorded for the creator.

Examples:
  beamio status 0xAbC...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			creator, err := parseAddress("creator", args[0])
			if err != nil {
				return err
			}
			c, err := rootOpts.openClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status(ctx, creator)
			if err != nil {
				return f.Revert("status failed", err)
			}
			return f.Success(StatusView{st})
		},
	}
}
