package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/client"
	"github.com/beamio-APP/BeamioContract/internal/probe"
)

// ProbeOptions holds flags for the probe command.
type ProbeOptions struct {
	*RootOptions
	RPCURL   string
	Accounts uint64
}

// ProbeView is the output of probe.
type ProbeView struct {
	ChainID uint64         `json:"chain_id"`
	Results []probe.Result `json:"results"`
}

func (v ProbeView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "chain %d", v.ChainID)
	for _, r := range v.Results {
		status := "absent"
		if r.Deployed {
			status = "deployed " + r.CodeHash.Hex()
		}
		if r.Matches != nil {
			if *r.Matches {
				status += ", matches ledger"
			} else if r.Deployed {
				status += ", DIFFERS from ledger"
			}
		}
		fmt.Fprintf(&b, "\n%-24s %s %s", r.Label, r.Address.Hex(), status)
	}
	return b.String()
}

// NewProbeCommand creates the probe command.
func NewProbeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProbeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "probe [creator...]",
		Short: "Check system and predicted addresses on a live chain",
		Long: `Ask a chain node, over JSON-RPC, whether code exists at the system's
contract addresses and at each creator's predicted account addresses, and
whether that code is what the ledger expects. All lookups go out in one
batch request.

The node URL comes from --rpc or BEAMIO_RPC_URL.

Examples:
  beamio probe --rpc http://localhost:8545
  beamio probe 0xAbC... 0xDeF... --accounts 3`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RPCURL, "rpc", "", "chain node JSON-RPC URL")
	cmd.Flags().Uint64Var(&opts.Accounts, "accounts", 1, "predicted accounts to check per creator")
	return cmd
}

func runProbe(opts *ProbeOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	creators := make([]chain.Address, len(args))
	for i, a := range args {
		addr, err := parseAddress("creator", a)
		if err != nil {
			return err
		}
		creators[i] = addr
	}
	rpcURL := opts.RPCURL
	if rpcURL == "" {
		rpcURL = opts.Env.RPCURL
	}
	if rpcURL == "" {
		return NewExitError(ExitCommandError, "no rpc url: set --rpc or BEAMIO_RPC_URL")
	}

	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	targets, err := probeTargets(cmd, c, creators, opts.Accounts)
	if err != nil {
		return f.Revert("probe failed", err)
	}

	p, err := probe.Dial(rpcURL, opts.logger())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	defer p.Close()

	id, err := p.ChainID(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "chain unreachable", err)
	}
	f.VerboseLog("probing %d addresses on chain %d", len(targets), id)
	results, err := p.Check(ctx, targets)
	if err != nil {
		return WrapExitError(ExitCommandError, "probe failed", err)
	}
	return f.Success(ProbeView{ChainID: id, Results: results})
}

// probeTargets lists the system contracts with the code the ledger holds
// for them, then each creator's predicted accounts with the account init
// code.
func probeTargets(cmd *cobra.Command, c *client.Client, creators []chain.Address, accounts uint64) ([]probe.Target, error) {
	ctx := cmd.Context()
	sys, err := c.System(ctx)
	if err != nil {
		return nil, err
	}

	named := map[string]chain.Address{
		client.NameAccountDeployer: sys.AccountDeployer,
		client.NameRegistry:        sys.Registry,
		client.NameDiamond:         sys.Diamond,
	}
	if sys.Collections != chain.ZeroAddress {
		named[client.NameCollectionDeployer] = sys.CollectionDeployer
		named[client.NameCollections] = sys.Collections
	}
	for name, addr := range sys.Facets {
		named[client.FacetPrefix+name] = addr
	}
	labels := make([]string, 0, len(named))
	for label := range named {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var targets []probe.Target
	for _, label := range labels {
		code, err := c.CodeAt(ctx, named[label])
		if err != nil {
			return nil, err
		}
		targets = append(targets, probe.Target{Label: label, Address: named[label], Expected: code})
	}

	initCode, err := c.AccountInitCode(ctx)
	if err != nil {
		return nil, err
	}
	for _, creator := range creators {
		for i := uint64(0); i < accounts; i++ {
			addr, err := c.PredictAddress(ctx, creator, i)
			if err != nil {
				return nil, err
			}
			targets = append(targets, probe.Target{
				Label:    fmt.Sprintf("%s/%d", creator.Hex(), i),
				Address:  addr,
				Expected: initCode,
			})
		}
	}
	return targets, nil
}
