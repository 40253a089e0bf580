// Package preflight validates environment prerequisites before any step runs.
//
// The validator checks that every configured tool exists on PATH at its
// minimum version, optionally remediating (auto-installing) what is missing,
// and enforces the git safety guard: with safety enabled, a dirty working
// tree refuses to run unless explicitly allowed.
//
// Failure policy: a missing or outdated tool is fatal unless remediation
// succeeds or skip_missing downgrades it to a warning. The git guard is
// always fatal when it trips; the only skip knob for it is allow_dirty in
// the configuration.
package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"

	"stackpilot/internal/config"
	"stackpilot/internal/logging"
)

// Outcome classifies a preflight check.
type Outcome string

// Preflight outcomes.
const (
	// OK means every prerequisite was already satisfied (or waived).
	OK Outcome = "ok"
	// Remediated means at least one missing tool was installed successfully.
	Remediated Outcome = "remediated"
	// Failed means a prerequisite is unsatisfied and the run must not start.
	Failed Outcome = "failed"
)

// ToolError reports a missing or outdated required tool.
type ToolError struct {
	Tool   string
	Detail string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("preflight: tool %s: %s", e.Tool, e.Detail)
}

// GitSafetyError reports a dirty working tree with git safety enabled.
type GitSafetyError struct {
	Root string
}

func (e *GitSafetyError) Error() string {
	return fmt.Sprintf("preflight: working tree at %s has uncommitted changes; commit or stash them, or set safety.allow_dirty", e.Root)
}

// Validator checks prerequisites for a run.
//
// The lookup and execution hooks are injectable so tests run without real
// tools installed; [NewValidator] wires the production defaults.
type Validator struct {
	cfg *config.Config
	log *logging.Logger

	lookPath   func(name string) (string, error)
	runCommand func(ctx context.Context, argv []string) (string, error)
	treeDirty  func(root string) (bool, error)
}

// NewValidator creates a Validator with production hooks.
func NewValidator(cfg *config.Config, log *logging.Logger) *Validator {
	return &Validator{
		cfg:        cfg,
		log:        log.Component("preflight"),
		lookPath:   exec.LookPath,
		runCommand: runCommand,
		treeDirty:  worktreeDirty,
	}
}

// Check validates every prerequisite.
//
// Order: git safety first (cheapest, and nothing should install tools into a
// tree the operator has not blessed), then the tool table. The first
// unrecoverable problem returns Failed with its typed error.
func (v *Validator) Check(ctx context.Context) (Outcome, error) {
	if v.cfg.Safety.GitSafety && !v.cfg.Safety.AllowDirty {
		dirty, err := v.treeDirty(v.cfg.Project.InstallRoot)
		if err != nil {
			v.log.Warnf("git safety check skipped: %v", err)
		} else if dirty {
			return Failed, &GitSafetyError{Root: v.cfg.Project.InstallRoot}
		}
	}

	outcome := OK
	for _, tool := range v.cfg.Preflight.Tools {
		toolOutcome, err := v.checkTool(ctx, tool)
		if err != nil {
			if v.cfg.Preflight.SkipMissing {
				v.log.Warnf("%v (skip_missing set, continuing)", err)
				continue
			}
			return Failed, err
		}
		if toolOutcome == Remediated {
			outcome = Remediated
		}
	}
	return outcome, nil
}

// checkTool verifies one tool, remediating once if allowed.
func (v *Validator) checkTool(ctx context.Context, tool config.ToolRequirement) (Outcome, error) {
	err := v.probe(ctx, tool)
	if err == nil {
		v.log.Debugf("tool %s ok", tool.Name)
		return OK, nil
	}

	if !v.cfg.Preflight.Remediate || len(tool.Install) == 0 {
		return Failed, err
	}

	v.log.Infof("remediating %s: %v", tool.Name, strings.Join(tool.Install, " "))
	if _, installErr := v.runCommand(ctx, tool.Install); installErr != nil {
		return Failed, &ToolError{Tool: tool.Name, Detail: fmt.Sprintf("remediation failed: %v", installErr)}
	}

	if err := v.probe(ctx, tool); err != nil {
		return Failed, &ToolError{Tool: tool.Name, Detail: "still unsatisfied after remediation"}
	}
	return Remediated, nil
}

// probe checks presence and minimum version of one tool.
func (v *Validator) probe(ctx context.Context, tool config.ToolRequirement) error {
	if _, err := v.lookPath(tool.Name); err != nil {
		return &ToolError{Tool: tool.Name, Detail: "not found on PATH"}
	}
	if tool.MinVersion == "" {
		return nil
	}

	out, err := v.runCommand(ctx, []string{tool.Name, "--version"})
	if err != nil {
		return &ToolError{Tool: tool.Name, Detail: fmt.Sprintf("version probe failed: %v", err)}
	}
	have := extractVersion(out)
	if have == "" {
		return &ToolError{Tool: tool.Name, Detail: "could not determine installed version"}
	}
	if compareVersions(have, tool.MinVersion) < 0 {
		return &ToolError{Tool: tool.Name, Detail: fmt.Sprintf("version %s is below minimum %s", have, tool.MinVersion)}
	}
	return nil
}

func runCommand(ctx context.Context, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// worktreeDirty reports whether the git working tree at root has uncommitted
// changes. A directory that is not a git repository is treated as clean: the
// guard protects existing history, and there is none to protect.
func worktreeDirty(root string) (bool, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return false, nil
		}
		return false, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, err
	}
	st, err := wt.Status()
	if err != nil {
		return false, err
	}
	return !st.IsClean(), nil
}

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)+|\d+`)

// extractVersion pulls the first dotted numeric sequence out of tool output.
func extractVersion(out string) string {
	return versionPattern.FindString(out)
}

// compareVersions compares dotted numeric versions segment by segment.
// Missing segments count as zero. Returns -1, 0, or 1.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
