// Package main provides the cascade CLI.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"cascade/internal/config"
	"cascade/internal/diag"
	"cascade/internal/gitio"
	"cascade/internal/gomod"
	"cascade/internal/npm"
	"cascade/internal/release"
	"cascade/internal/session"
)

var (
	styleWarnHead = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	styleWarnItem = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleReleased = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleMuted    = lipgloss.NewStyle().Faint(true)
)

var rootCmd = &cobra.Command{
	Use:           "cascade",
	Short:         "Just-in-time version assignment and release automation for monorepos",
	Long:          `Cascade keeps version numbers out of your main branch. Release requests are staged as data on a dedicated rc branch, concrete versions are computed at release time from the repository history, and the results are recorded as release commits and tags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var stageCmd = &cobra.Command{
	Use:   "stage [projects...]",
	Short: "Stage release requests for the named projects (default: all)",
	RunE:  runStage,
}

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Turn the staged release requests into an rc-branch commit",
	Args:  cobra.NoArgs,
	RunE:  runConfirm,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Compute new versions and rewrite project manifests",
	Args:  cobra.NoArgs,
	RunE:  runApply,
}

var releaseCommitCmd = &cobra.Command{
	Use:   "release-commit",
	Short: "Record the computed versions in a release-branch commit",
	Args:  cobra.NoArgs,
	RunE:  runReleaseCommit,
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Create annotated tags for the projects released at HEAD",
	Args:  cobra.NoArgs,
	RunE:  runTag,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the release state of every project",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print facts about the repository",
}

var showVersionCmd = &cobra.Command{
	Use:   "version <project>",
	Short: "Print the current version of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowVersion,
}

var (
	repoPath  string
	verbose   bool
	forceFlag bool
	bumpSpec  string

	collector *diag.Collector
)

func init() {
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", ".", "Path to the repository")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose diagnostic output")

	for _, c := range []*cobra.Command{stageCmd, confirmCmd, applyCmd, releaseCommitCmd} {
		c.Flags().BoolVar(&forceFlag, "force", false, "Override environment safety checks")
	}
	stageCmd.Flags().StringVar(&bumpSpec, "bump", "micro bump", "Bump specification for the staged requests")

	showCmd.AddCommand(showVersionCmd)

	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(releaseCommitCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	err := rootCmd.Execute()
	printWarningSummary()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// printWarningSummary replays collected warnings after the main output, so
// they are not lost in the middle of a long run.
func printWarningSummary() {
	if collector == nil {
		return
	}
	warnings := collector.Warnings()
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, styleWarnHead.Render(fmt.Sprintf("%d warning(s):", len(warnings))))
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, styleWarnItem.Render("  - "+w))
	}
}

// openSession loads configuration, opens the repository, and discovers the
// project graph.
func openSession() (*session.Session, error) {
	cfg, err := config.Load(repoPath)
	if err != nil {
		return nil, err
	}

	repo, err := gitio.Open(repoPath, cfg)
	if err != nil {
		return nil, err
	}

	collector = diag.NewCollector(diag.NewLogger(os.Stderr, verbose))
	sess := session.New(repo, collector)

	if err := sess.PopulateGraph(&gomod.Loader{}, &npm.Loader{}); err != nil {
		return nil, err
	}
	return sess, nil
}

func runStage(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}

	env, err := sess.Environment()
	if err != nil {
		return err
	}
	if err := env.EnsureNotCi(forceFlag, sess.Sink); err != nil {
		return err
	}

	ids, err := sess.Graph.QueryNames(args)
	if err != nil {
		return err
	}

	for _, id := range ids {
		proj := sess.Graph.Lookup(id)
		req := &release.RcProjectInfo{
			Qnames:   proj.QualifiedNames(),
			BumpSpec: bumpSpec,
		}
		if err := sess.Repo.WriteStagedRequest(req); err != nil {
			return err
		}
		fmt.Printf("staged: %s (%s)\n", proj.UserFacingName, bumpSpec)
	}
	return nil
}

func runConfirm(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}

	env, err := sess.Environment()
	if err != nil {
		return err
	}
	if err := env.EnsureNotCi(forceFlag, sess.Sink); err != nil {
		return err
	}
	if err := sess.EnsureFullyClean(); err != nil {
		return err
	}

	reqs, err := sess.Repo.ScanStagedRequests()
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return fmt.Errorf("no staged release requests; run `cascade stage` first")
	}

	// Dry-run the resolution so an unsatisfiable batch is rejected before
	// anything lands on the rc branch.
	if err := sess.ApplyVersions(&release.RcCommitInfo{Projects: reqs}); err != nil {
		return err
	}

	commit, err := sess.MakeRcCommit(reqs, nil)
	if err != nil {
		return err
	}
	if err := sess.Repo.ClearStagedRequests(); err != nil {
		return err
	}

	fmt.Printf("created rc commit %s with %d release request(s)\n", commit.Short(), len(reqs))
	fmt.Printf("push it for validation: git push <upstream> %s\n", sess.Repo.RcName())
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}

	env, err := sess.Environment()
	if err != nil {
		return err
	}
	devMode, rcInfo, err := env.EnsureCiRcMode(forceFlag, sess.Sink)
	if err != nil {
		return err
	}
	if devMode {
		rcInfo = sess.DefaultDevRcInfo()
	}

	if err := sess.ApplyVersions(rcInfo); err != nil {
		return err
	}

	changed, err := sess.Rewrite()
	if err != nil {
		return err
	}
	fmt.Printf("applied versions; %d file(s) rewritten\n", len(changed))
	return nil
}

func runReleaseCommit(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}

	env, err := sess.Environment()
	if err != nil {
		return err
	}
	devMode, rcInfo, err := env.EnsureCiRcMode(forceFlag, sess.Sink)
	if err != nil {
		return err
	}
	if devMode {
		return fmt.Errorf("release commits need a real release request table; run this on the rc branch in CI")
	}

	if err := sess.ApplyVersions(rcInfo); err != nil {
		return err
	}

	changed, err := sess.Rewrite()
	if err != nil {
		return err
	}

	commit, err := sess.MakeReleaseCommit(changed)
	if err != nil {
		return err
	}
	fmt.Printf("created release commit %s\n", commit.Short())
	return nil
}

func runTag(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}

	env, err := sess.Environment()
	if err != nil {
		return err
	}
	relInfo, err := env.EnsureCiReleaseMode()
	if err != nil {
		return err
	}

	names, err := sess.CreateTags(relInfo)
	if err != nil {
		return err
	}
	fmt.Printf("created %d tag(s)\n", len(names))
	for _, name := range names {
		fmt.Println("  " + name)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}

	latest, err := sess.Repo.LatestReleaseInfo()
	if err != nil {
		return err
	}

	for _, proj := range sess.Graph.Projects() {
		entry := latest.Lookup(proj)
		switch {
		case entry == nil:
			fmt.Printf("%s: %s\n", proj.UserFacingName, styleMuted.Render("never released"))
		case entry.Age == 0:
			fmt.Printf("%s: %s\n", proj.UserFacingName,
				styleReleased.Render(fmt.Sprintf("%s (released in latest batch)", entry.Version)))
		default:
			fmt.Printf("%s: %s\n", proj.UserFacingName,
				fmt.Sprintf("%s (%d release batch(es) ago)", entry.Version, entry.Age))
		}
	}
	return nil
}

func runShowVersion(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}

	// On the rc branch the requested bumps are visible and included;
	// everywhere else the last released versions are reported as-is.
	env, err := sess.Environment()
	if err != nil {
		return err
	}
	rcInfo := &release.RcCommitInfo{}
	if env.RcInfo != nil {
		rcInfo = env.RcInfo
	}

	if err := sess.ApplyVersions(rcInfo); err != nil {
		return err
	}

	ids, err := sess.Graph.QueryNames(args)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(sess.Graph.Lookup(id).Version.String())
	}
	return nil
}
