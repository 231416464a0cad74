package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// RoleView reports a caller's authorization.
type RoleView struct {
	Caller     chain.Address `json:"caller"`
	Authorized bool          `json:"authorized"`
}

func (v RoleView) String() string {
	if v.Authorized {
		return fmt.Sprintf("%s is an authorized caller", v.Caller.Hex())
	}
	return fmt.Sprintf("%s is not an authorized caller", v.Caller.Hex())
}

// AuthorizeOptions holds flags for the authorize command.
type AuthorizeOptions struct {
	*RootOptions
	From   string
	Revoke bool
	Check  bool
}

// NewAuthorizeCommand creates the authorize command.
func NewAuthorizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuthorizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "authorize <caller>",
		Short: "Grant or revoke the authorized-caller role",
		Long: `Grant (or with --revoke, revoke) the role that lets a paymaster provision
accounts and collections on behalf of creators. Admin only.

With --check the role is reported and nothing is sent.

Examples:
  beamio authorize 0xPaymaster... --from 0xAdmin...
  beamio authorize 0xPaymaster... --from 0xAdmin... --revoke
  beamio authorize 0xPaymaster... --check`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthorize(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "admin address")
	cmd.Flags().BoolVar(&opts.Revoke, "revoke", false, "revoke instead of grant")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "report the role without changing it")
	cmd.MarkFlagsMutuallyExclusive("check", "from")
	cmd.MarkFlagsOneRequired("check", "from")

	return cmd
}

func runAuthorize(opts *AuthorizeOptions, callerArg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	caller, err := parseAddress("caller", callerArg)
	if err != nil {
		return err
	}
	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.Check {
		ok, err := c.IsAuthorizedCaller(ctx, caller)
		if err != nil {
			return f.Revert("check failed", err)
		}
		return f.Success(RoleView{Caller: caller, Authorized: ok})
	}

	from, err := parseAddress("sender", opts.From)
	if err != nil {
		return err
	}
	rcpt, err := c.SetAuthorizedCaller(ctx, from, caller, !opts.Revoke)
	if err != nil {
		return f.Revert("authorize failed", err)
	}
	return f.SuccessTx(rcpt.TxID, RoleView{Caller: caller, Authorized: !opts.Revoke})
}

// LimitView reports the account limit.
type LimitView struct {
	Limit uint64 `json:"limit"`
}

func (v LimitView) String() string {
	return fmt.Sprintf("account limit: %d", v.Limit)
}

// NewLimitCommand creates the limit command.
func NewLimitCommand(rootOpts *RootOptions) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "limit <n>",
		Short: "Set the per-creator account limit",
		Long: `Set how many accounts one creator may be issued. Admin only. Lowering
the limit below a creator's next index blocks further provisioning for
that creator, including repeated calls for an existing primary.

Examples:
  beamio limit 5 --from 0xAdmin...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			limit, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid limit", err)
			}
			sender, err := parseAddress("sender", from)
			if err != nil {
				return err
			}
			c, err := rootOpts.openClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			rcpt, err := c.SetAccountLimit(ctx, sender, limit)
			if err != nil {
				return f.Revert("set limit failed", err)
			}
			return f.SuccessTx(rcpt.TxID, LimitView{Limit: limit})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "admin address (required)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// AdminView reports the registries' admin.
type AdminView struct {
	Admin chain.Address `json:"admin"`
}

func (v AdminView) String() string {
	return "admin: " + v.Admin.Hex()
}

// NewTransferAdminCommand creates the transfer-admin command.
func NewTransferAdminCommand(rootOpts *RootOptions) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "transfer-admin <new-admin>",
		Short: "Hand the registries' admin role to another address",
		Long: `Transfer the admin role of the account registry, and of the collection
registry when one exists, in one transaction. Admin only. The diamond's
owner is not affected.

Examples:
  beamio transfer-admin 0xNewAdmin... --from 0xAdmin...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			next, err := parseAddress("new admin", args[0])
			if err != nil {
				return err
			}
			sender, err := parseAddress("sender", from)
			if err != nil {
				return err
			}
			c, err := rootOpts.openClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			rcpt, err := c.TransferAdmin(ctx, sender, next)
			if err != nil {
				return f.Revert("transfer admin failed", err)
			}
			return f.SuccessTx(rcpt.TxID, AdminView{Admin: next})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "current admin address (required)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// BindingView reports a deployer's latch.
type BindingView struct {
	Deployer chain.Address `json:"deployer"`
	Bound    bool          `json:"bound"`
	Registry chain.Address `json:"registry"`
}

func (v BindingView) String() string {
	if !v.Bound {
		return fmt.Sprintf("%s is unbound", v.Deployer.Hex())
	}
	return fmt.Sprintf("%s is bound to %s", v.Deployer.Hex(), v.Registry.Hex())
}

// BindOptions holds flags for the bind command.
type BindOptions struct {
	*RootOptions
	From     string
	Registry string
}

// NewBindCommand creates the bind command.
func NewBindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bind <deployer>",
		Short: "Show or set a deployer's registry binding",
		Long: `Without --registry, report which registry the deployer is bound to.

With --registry, latch the deployer to that registry. Only the deployer's
owner may bind. Binding again to the same registry is a no-op; binding to
a different one fails with ALREADY_BOUND.

Examples:
  beamio bind 0xDeployer...
  beamio bind 0xDeployer... --registry 0xRegistry... --from 0xOwner...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBind(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Registry, "registry", "", "registry to bind to")
	cmd.Flags().StringVar(&opts.From, "from", "", "deployer owner address")
	cmd.MarkFlagsRequiredTogether("registry", "from")

	return cmd
}

func runBind(opts *BindOptions, depArg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	dep, err := parseAddress("deployer", depArg)
	if err != nil {
		return err
	}
	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	txID := ""
	if opts.Registry != "" {
		reg, err := parseAddress("registry", opts.Registry)
		if err != nil {
			return err
		}
		from, err := parseAddress("sender", opts.From)
		if err != nil {
			return err
		}
		rcpt, err := c.Bind(ctx, from, dep, reg)
		if err != nil {
			return f.Revert("bind failed", err)
		}
		txID = rcpt.TxID
	}

	b, err := c.Binding(ctx, dep)
	if err != nil {
		return f.Revert("read binding failed", err)
	}
	reg, bound := b.Registry()
	view := BindingView{Deployer: dep, Bound: bound, Registry: reg}
	if txID != "" {
		return f.SuccessTx(txID, view)
	}
	return f.Success(view)
}
