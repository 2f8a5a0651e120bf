package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/checkcode/internal/approval"
	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"git.home.luguber.info/inful/checkcode/internal/git"
	"git.home.luguber.info/inful/checkcode/internal/logfields"
	"git.home.luguber.info/inful/checkcode/internal/preprocessor"
)

// AllowCmd implements the 'allow' command.
type AllowCmd struct {
	Dir  string `arg:"" optional:"" default:"." help:"Project directory (containing book.toml or checkcode.yaml)"`
	Note string `help:"Free-form note stored with the approval"`
}

func (a *AllowCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	project, plan, err := resolvePlan(a.Dir, g, root)
	if err != nil {
		return err
	}
	store, err := root.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := approval.RefuseInProject(store, project); err != nil {
		return err
	}

	rec := approval.Record{
		Fingerprint: plan.Fingerprint,
		Project:     project,
		ApprovedAt:  time.Now().UTC(),
		Note:        a.Note,
	}
	if p, err := git.Detect(project); err == nil {
		rec.Revision = p.Revision
	} else {
		g.logger().Debug("Project revision unavailable", logfields.Error(err))
	}
	if err := store.Put(ctx, rec); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInfrastructure, "record approval").Fatal().Build()
	}

	out := g.stdout()
	fmt.Fprintf(out, "Approved %s\n", project)
	fmt.Fprintf(out, "Fingerprint %s\n", approval.Short(plan.Fingerprint))
	printToolchains(g, plan)
	return nil
}

// DenyCmd implements the 'deny' command.
type DenyCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"Project directory"`
}

func (d *DenyCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	project := approval.ProjectKey(d.Dir)
	store, err := root.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.Delete(ctx, project)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInfrastructure, "revoke approval").Fatal().Build()
	}
	fmt.Fprintf(g.stdout(), "Revoked %d approval(s) for %s\n", n, project)
	return nil
}

// StatusCmd implements the 'status' command. It fails with the approval exit
// code when the current configuration is not approved.
type StatusCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"Project directory"`
}

func (s *StatusCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	project, plan, err := resolvePlan(s.Dir, g, root)
	if err != nil {
		return err
	}
	store, err := root.OpenStoreReadOnly()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := g.stdout()
	fmt.Fprintf(out, "Project     %s\n", project)
	fmt.Fprintf(out, "Fingerprint %s\n", approval.Short(plan.Fingerprint))
	fmt.Fprintf(out, "Store       %s\n", store.Location())
	if plan.Table.Len() == 0 {
		fmt.Fprintln(out, "Status      no languages configured")
		return nil
	}
	if err := approval.NewGate(store, g.logger()).Check(ctx, project, plan.Fingerprint); err != nil {
		fmt.Fprintln(out, "Status      not approved")
		return err
	}
	fmt.Fprintln(out, "Status      approved")
	return nil
}

// ListCmd implements the 'list' command.
type ListCmd struct{}

func (l *ListCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	store, err := root.OpenStoreReadOnly()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	recs, err := store.List(ctx)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInfrastructure, "list approvals").Fatal().Build()
	}

	out := g.stdout()
	if root.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "No approved projects")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tFINGERPRINT\tREVISION\tAPPROVED\tNOTE")
	for _, r := range recs {
		rev := r.Revision
		if len(rev) > 8 {
			rev = rev[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Project, approval.Short(r.Fingerprint), rev, r.ApprovedAt.Local().Format(time.DateTime), r.Note)
	}
	return tw.Flush()
}

// resolvePlan loads and resolves the configuration of the project in dir.
func resolvePlan(dir string, g *Global, root *CLI) (string, *preprocessor.Plan, error) {
	p, err := readProject(dir, root.NoDotenv, g.logger())
	if err != nil {
		return "", nil, err
	}
	plan, err := preprocessor.New(preprocessor.Options{Logger: g.logger()}).Prepare(p.Config, p.DotEnv)
	if err != nil {
		return "", nil, err
	}
	return approval.ProjectKey(p.Root), plan, nil
}

// printToolchains lists what an approval allows to run.
func printToolchains(g *Global, plan *preprocessor.Plan) {
	out := g.stdout()
	for _, r := range plan.Table.All() {
		fmt.Fprintf(out, "  %-16s %s %s\n", r.Label(), r.Executable, strings.Join(r.Args, " "))
	}
}
