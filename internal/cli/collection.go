package cli

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// CollectionsView lists an owner's collections.
type CollectionsView struct {
	Owner       chain.Address   `json:"owner"`
	Collections []chain.Address `json:"collections"`
}

func (v CollectionsView) String() string {
	if len(v.Collections) == 0 {
		return fmt.Sprintf("%s has no collections", v.Owner.Hex())
	}
	lines := make([]string, len(v.Collections))
	for i, a := range v.Collections {
		lines[i] = fmt.Sprintf("[%d] %s", i, a.Hex())
	}
	return strings.Join(lines, "\n")
}

// NewCollectionCommand creates the collection command group.
func NewCollectionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Provision and list card collections",
		Long: `Card collections are provisioned per owner at CREATE2 addresses, like
accounts, from init code the caller supplies. The system must have been
bootstrapped with a non-zero collection_limit.`,
	}

	cmd.AddCommand(newCollectionCreateCommand(rootOpts))
	cmd.AddCommand(newCollectionListCommand(rootOpts))
	cmd.AddCommand(newCollectionPredictCommand(rootOpts))
	return cmd
}

func newCollectionCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var from, initCode string

	cmd := &cobra.Command{
		Use:   "create <owner>",
		Short: "Provision the owner's next collection",
		Long: `Provision the owner's next collection. Authorized callers only.

Examples:
  beamio collection create 0xOwner... --from 0xPaymaster... --init-code 0x6080...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			owner, err := parseAddress("owner", args[0])
			if err != nil {
				return err
			}
			sender, err := parseAddress("sender", from)
			if err != nil {
				return err
			}
			code, err := hexutil.Decode(initCode)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid init code", err)
			}
			c, err := rootOpts.openClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			out, rcpt, err := c.CreateCollection(ctx, sender, owner, code)
			if err != nil {
				return f.Revert("collection create failed", err)
			}
			return f.SuccessTx(rcpt.TxID, newOutcomeView(out))
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "authorized caller address (required)")
	_ = cmd.MarkFlagRequired("from")
	cmd.Flags().StringVar(&initCode, "init-code", "", "0x-prefixed collection init code (required)")
	_ = cmd.MarkFlagRequired("init-code")
	return cmd
}

func newCollectionListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <owner>",
		Short:         "List the owner's collections in issuance order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			owner, err := parseAddress("owner", args[0])
			if err != nil {
				return err
			}
			c, err := rootOpts.openClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			collections, err := c.CollectionsOf(ctx, owner)
			if err != nil {
				return f.Revert("collection listing failed", err)
			}
			if collections == nil {
				collections = []chain.Address{}
			}
			return f.Success(CollectionsView{Owner: owner, Collections: collections})
		},
	}
}

func newCollectionPredictCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		initCode string
		index    int64
	)

	cmd := &cobra.Command{
		Use:           "predict <owner>",
		Short:         "Predict a collection address",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			owner, err := parseAddress("owner", args[0])
			if err != nil {
				return err
			}
			code, err := hexutil.Decode(initCode)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid init code", err)
			}
			c, err := rootOpts.openClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			var idx uint64
			if index >= 0 {
				idx = uint64(index)
			} else if idx, err = c.NextCollectionIndexOf(ctx, owner); err != nil {
				return f.Revert("predict failed", err)
			}
			addr, err := c.PredictCollection(ctx, owner, idx, code)
			if err != nil {
				return f.Revert("predict failed", err)
			}
			return f.Success(PredictView{Creator: owner, Index: idx, Address: addr})
		},
	}

	cmd.Flags().StringVar(&initCode, "init-code", "", "0x-prefixed collection init code (required)")
	_ = cmd.MarkFlagRequired("init-code")
	cmd.Flags().Int64Var(&index, "index", -1, "issuance index (default: next index)")
	return cmd
}
