// Package environment classifies the context a cascade invocation runs in:
// a developer's machine, a CI build of a pull request or development branch,
// or one of the two release pipeline modes. Commands gate themselves on the
// classification so that publish-adjacent operations only run where they are
// supposed to.
package environment

import (
	"fmt"
	"os"
	"strings"

	"cascade/internal/diag"
	"cascade/internal/release"
)

// State is the classified execution environment.
type State int

const (
	// NotCi is a non-CI context, normally a developer workstation.
	NotCi State = iota
	// CiPullRequest is a CI build of a pull request against an ordinary
	// branch.
	CiPullRequest
	// CiDevelopmentBranch is a CI build of a push to a branch other than
	// the rc branch.
	CiDevelopmentBranch
	// CiRcMode is a CI build triggered by an update to the rc branch, with
	// the rc branch checked out.
	CiRcMode
	// CiReleaseMode is a CI build triggered by an update to the rc branch,
	// after the pipeline has switched to the release branch.
	CiReleaseMode
)

func (s State) String() string {
	switch s {
	case NotCi:
		return "not CI"
	case CiPullRequest:
		return "CI: pull request"
	case CiDevelopmentBranch:
		return "CI: development branch"
	case CiRcMode:
		return "CI: rc mode"
	case CiReleaseMode:
		return "CI: release mode"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Error reports an execution context that a command cannot work in.
type Error struct {
	State  State
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (environment: %s)", e.Reason, e.State)
}

// Environment is the classification result for one invocation.
type Environment struct {
	State State

	// Branch is the branch that triggered the CI build, when known.
	Branch string

	// RcInfo is the request table parsed from HEAD; set in CiRcMode.
	RcInfo *release.RcCommitInfo

	// ReleaseInfo is the release table parsed from HEAD; set in
	// CiReleaseMode.
	ReleaseInfo *release.ReleaseCommitInfo
}

// Repo is the repository surface the classifier needs. *gitio.Repository
// implements it.
type Repo interface {
	RcName() string
	ReleaseName() string
	CurrentBranch() (string, error)
	ParseRcInfoFromHead() (*release.RcCommitInfo, error)
	ParseReleaseInfoFromHead() (*release.ReleaseCommitInfo, error)
}

// ciSignal is the raw CI information gathered from environment variables.
type ciSignal struct {
	ci     bool
	pr     bool
	branch string
}

// detectSignal reads the CI vendor variables. GitHub Actions and Azure
// Pipelines are understood in detail; any other system setting CI=true is
// recognized without branch information.
func detectSignal(getenv func(string) string) ciSignal {
	if getenv("GITHUB_ACTIONS") == "true" {
		event := getenv("GITHUB_EVENT_NAME")
		pr := event == "pull_request" || event == "pull_request_target"
		branch := getenv("GITHUB_REF_NAME")
		if pr {
			branch = getenv("GITHUB_BASE_REF")
		}
		return ciSignal{ci: true, pr: pr, branch: branch}
	}

	if getenv("TF_BUILD") == "True" {
		pr := getenv("SYSTEM_PULLREQUEST_PULLREQUESTID") != ""
		branch := getenv("BUILD_SOURCEBRANCHNAME")
		if pr {
			branch = strings.TrimPrefix(getenv("SYSTEM_PULLREQUEST_TARGETBRANCH"), "refs/heads/")
		}
		return ciSignal{ci: true, pr: pr, branch: branch}
	}

	if getenv("CI") == "true" {
		return ciSignal{ci: true}
	}

	return ciSignal{}
}

// Detect classifies the current process's execution environment.
func Detect(repo Repo, sink diag.Sink) (*Environment, error) {
	return detect(os.Getenv, repo, sink)
}

func detect(getenv func(string) string, repo Repo, sink diag.Sink) (*Environment, error) {
	sig := detectSignal(getenv)

	if !sig.ci {
		return &Environment{State: NotCi}, nil
	}

	rcName := repo.RcName()
	releaseName := repo.ReleaseName()

	if sig.branch == "" {
		sink.Warn("cannot determine the triggering branch in this CI environment; workflow safety checks are weakened")
	}

	if sig.pr {
		if sig.branch == rcName || sig.branch == releaseName {
			sink.Warn("running in a pull request against a release workflow branch; treating as a non-CI environment for safety",
				"branch", sig.branch)
			return &Environment{State: NotCi}, nil
		}
		return &Environment{State: CiPullRequest, Branch: sig.branch}, nil
	}

	if sig.branch != rcName {
		if sig.branch == releaseName {
			sink.Warn("running in a direct update to the release branch; this is not part of the normal workflow",
				"branch", sig.branch)
		}
		return &Environment{State: CiDevelopmentBranch, Branch: sig.branch}, nil
	}

	// Triggered by an rc branch update: the checked-out branch decides
	// whether we are before or after the pipeline's switch to the release
	// branch. On Azure the initial checkout is detached, so an rc trigger
	// with parseable request data on HEAD counts as rc mode too.
	current, err := repo.CurrentBranch()
	if err != nil {
		return nil, err
	}

	switch current {
	case releaseName:
		relInfo, err := repo.ParseReleaseInfoFromHead()
		if err != nil {
			return nil, fmt.Errorf("classifying release-branch checkout: %w", err)
		}
		return &Environment{State: CiReleaseMode, Branch: sig.branch, ReleaseInfo: relInfo}, nil

	case rcName, "":
		rcInfo, err := repo.ParseRcInfoFromHead()
		if err != nil {
			return nil, fmt.Errorf("classifying rc-branch checkout: %w", err)
		}
		return &Environment{State: CiRcMode, Branch: sig.branch, RcInfo: rcInfo}, nil

	default:
		return nil, &Error{
			State:  CiRcMode,
			Reason: fmt.Sprintf("rc branch update with unexpected checkout %q", current),
		}
	}
}

// EnsureNotCi verifies the command is running outside CI. With force, a CI
// context is tolerated with a warning.
func (env *Environment) EnsureNotCi(force bool, sink diag.Sink) error {
	if env.State == NotCi {
		return nil
	}
	sink.Warn("CI environment detected; this is unexpected for this command", "state", env.State.String())
	if force {
		return nil
	}
	return &Error{State: env.State, Reason: "refusing to proceed (use --force to override)"}
}

// EnsureCiRcMode verifies the command can obtain a request table. True rc
// mode returns the table from HEAD. The CI development states are accepted
// as development mode: the caller synthesizes a dev-datecode request for
// every project. Other states need force to degrade to development mode.
// The returned boolean is true for development mode.
func (env *Environment) EnsureCiRcMode(force bool, sink diag.Sink) (bool, *release.RcCommitInfo, error) {
	switch env.State {
	case CiRcMode:
		return false, env.RcInfo, nil

	case CiPullRequest, CiDevelopmentBranch:
		return true, nil, nil

	default:
		sink.Warn("this command expects an rc-mode CI environment", "state", env.State.String())
		if force {
			return true, nil, nil
		}
		return false, nil, &Error{State: env.State, Reason: "refusing to proceed (use --force to override)"}
	}
}

// EnsureCiReleaseMode verifies the command is running on a checked-out
// release branch in CI and returns the release table from HEAD. There is no
// force escape: without real release data the command has nothing to act on.
func (env *Environment) EnsureCiReleaseMode() (*release.ReleaseCommitInfo, error) {
	if env.State != CiReleaseMode {
		return nil, &Error{
			State:  env.State,
			Reason: "release information is only available on a checked-out release branch in CI",
		}
	}
	return env.ReleaseInfo, nil
}
