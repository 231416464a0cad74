package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/client"
	"github.com/beamio-APP/BeamioContract/internal/facet"
)

// RouteView is one routing table entry.
type RouteView struct {
	Selector string        `json:"selector"`
	Module   chain.Address `json:"module"`
}

// RoutesView is the output of routes.
type RoutesView struct {
	Routes []RouteView `json:"routes"`
}

func (v RoutesView) String() string {
	if len(v.Routes) == 0 {
		return "no routes"
	}
	lines := make([]string, len(v.Routes))
	for i, r := range v.Routes {
		module := r.Module.Hex()
		if r.Module == chain.ZeroAddress {
			module = "(unrouted)"
		}
		lines[i] = fmt.Sprintf("%s -> %s", r.Selector, module)
	}
	return strings.Join(lines, "\n")
}

// FacetView is one module with its selectors.
type FacetView struct {
	Module    chain.Address `json:"module"`
	Selectors []string      `json:"selectors"`
}

// FacetsView is the output of routes --facets.
type FacetsView struct {
	Facets []FacetView `json:"facets"`
}

func (v FacetsView) String() string {
	var b strings.Builder
	for i, fv := range v.Facets {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", fv.Module.Hex(), strings.Join(fv.Selectors, " "))
	}
	return b.String()
}

func selectorStrings(sels []chain.Selector) []string {
	out := make([]string, len(sels))
	for i, s := range sels {
		out[i] = s.String()
	}
	return out
}

// parseSelector accepts a 0x-prefixed selector or a function signature.
func parseSelector(s string) chain.Selector {
	if sel, err := chain.ParseSelector(s); err == nil {
		return sel
	}
	return chain.SelectorOf(strings.ReplaceAll(s, " ", ""))
}

// RoutesOptions holds flags for the routes command.
type RoutesOptions struct {
	*RootOptions
	Facets bool
}

// NewRoutesCommand creates the routes command.
func NewRoutesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RoutesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "routes [selector-or-signature]",
		Short: "Show the diamond's routing table",
		Long: `List every selector and the module serving it, or look up one selector.
The diamond's own cut selector (0x1f931c1c) is always routed to the
diamond itself.

Examples:
  beamio routes
  beamio routes --facets
  beamio routes "transfer(address,uint256)"
  beamio routes 0xa9059cbb`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutes(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Facets, "facets", false, "group selectors by module")
	return cmd
}

func runRoutes(opts *RoutesOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if len(args) == 1 {
		sel := parseSelector(args[0])
		module, err := c.RouteOf(ctx, sel)
		if err != nil {
			return f.Revert("route lookup failed", err)
		}
		return f.Success(RoutesView{Routes: []RouteView{{Selector: sel.String(), Module: module}}})
	}

	if opts.Facets {
		facets, err := c.Facets(ctx)
		if err != nil {
			return f.Revert("facet listing failed", err)
		}
		view := FacetsView{Facets: make([]FacetView, len(facets))}
		for i, fc := range facets {
			view.Facets[i] = FacetView{Module: fc.Module, Selectors: selectorStrings(fc.Selectors)}
		}
		return f.Success(view)
	}

	routes, err := c.AllRoutes(ctx)
	if err != nil {
		return f.Revert("route listing failed", err)
	}
	view := RoutesView{Routes: make([]RouteView, len(routes))}
	for i, r := range routes {
		view.Routes[i] = RouteView{Selector: r.Selector.String(), Module: r.Module}
	}
	return f.Success(view)
}

// PlanView is the output of migrate.
type PlanView struct {
	Module    chain.Address `json:"module"`
	Add       []string      `json:"add"`
	Replace   []string      `json:"replace"`
	Unchanged []string      `json:"unchanged"`
	Applied   bool          `json:"applied"`
}

func newPlanView(p facet.Plan, applied bool) PlanView {
	return PlanView{
		Module:    p.Module,
		Add:       selectorStrings(p.Add),
		Replace:   selectorStrings(p.Replace),
		Unchanged: selectorStrings(p.Unchanged),
		Applied:   applied,
	}
}

func (v PlanView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module:    %s\n", v.Module.Hex())
	fmt.Fprintf(&b, "add:       %d %s\n", len(v.Add), strings.Join(v.Add, " "))
	fmt.Fprintf(&b, "replace:   %d %s\n", len(v.Replace), strings.Join(v.Replace, " "))
	fmt.Fprintf(&b, "unchanged: %d", len(v.Unchanged))
	switch {
	case len(v.Add) == 0 && len(v.Replace) == 0:
		b.WriteString("\nnothing to migrate")
	case !v.Applied:
		b.WriteString("\ndry run, no cut submitted")
	}
	return b.String()
}

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	From       string
	Module     string
	Install    string
	ABI        string
	Signatures []string
	DryRun     bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Route a module's selectors to it in one cut",
		Long: `Classify the module's selectors against the routing table (add the new
ones, replace the ones served elsewhere, leave the rest) and apply the
result as a single cut. Diamond owner only. When nothing would change no
transaction is sent.

Selectors come from an ABI JSON file (--abi) or from function signatures
(--sig, repeatable). The module is an existing address (--module) or is
installed first under a name (--install).

Examples:
  beamio migrate --from 0xAdmin... --module 0xModule... --abi token.abi.json
  beamio migrate --from 0xAdmin... --install token-v2 --sig "transfer(address,uint256)"
  beamio migrate --from 0xAdmin... --module 0xModule... --abi token.abi.json --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "diamond owner address (required)")
	_ = cmd.MarkFlagRequired("from")
	cmd.Flags().StringVar(&opts.Module, "module", "", "module address")
	cmd.Flags().StringVar(&opts.Install, "install", "", "install a module under this name first")
	cmd.MarkFlagsMutuallyExclusive("module", "install")
	cmd.MarkFlagsOneRequired("module", "install")
	cmd.Flags().StringVar(&opts.ABI, "abi", "", "ABI JSON file listing the module's functions")
	cmd.Flags().StringArrayVar(&opts.Signatures, "sig", nil, "function signature (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("abi", "sig")
	cmd.MarkFlagsOneRequired("abi", "sig")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan without sending the cut")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "install")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	from, err := parseAddress("sender", opts.From)
	if err != nil {
		return err
	}
	sels, err := opts.selectors()
	if err != nil {
		return err
	}

	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var module chain.Address
	if opts.Install != "" {
		addr, _, err := c.InstallModule(ctx, from, client.ModuleCode(opts.Install))
		if err != nil {
			return f.Revert("module install failed", err)
		}
		f.VerboseLog("installed module %s at %s", opts.Install, addr.Hex())
		module = addr
	} else if module, err = parseAddress("module", opts.Module); err != nil {
		return err
	}

	if opts.DryRun {
		plan, err := c.PlanMigration(ctx, module, sels)
		if err != nil {
			return f.Revert("migration planning failed", err)
		}
		return f.Success(newPlanView(plan, false))
	}

	plan, rcpt, err := c.Migrate(ctx, from, module, sels)
	if err != nil {
		return f.Revert("migration failed", err)
	}
	if rcpt == nil {
		return f.Success(newPlanView(plan, false))
	}
	return f.SuccessTx(rcpt.TxID, newPlanView(plan, true))
}

func (o *MigrateOptions) selectors() ([]chain.Selector, error) {
	if o.ABI != "" {
		data, err := os.ReadFile(o.ABI)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read ABI", err)
		}
		sels, err := facet.SelectorsFromABI(data)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid ABI", err)
		}
		return sels, nil
	}
	sels, err := facet.SelectorsFromSignatures(o.Signatures)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid signature", err)
	}
	return sels, nil
}
