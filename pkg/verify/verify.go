// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify checks a built runtime image against its definition:
// interpreter version and location, installed dependencies, timezone,
// locale, environment, and working directory.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/image"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"

	"github.com/uecboard/keiji/internal/pyver"
	"github.com/uecboard/keiji/pkg/provision"
)

// Check is the outcome of one verified property.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Want   string `json:"want"`
	Got    string `json:"got"`
	// Detail carries command output for failed checks.
	Detail string `json:"detail,omitempty"`
}

// Report aggregates the checks run against one image.
type Report struct {
	Image    string    `json:"image"`
	Python   string    `json:"python"`
	Verified time.Time `json:"verified"`
	Passed   bool      `json:"passed"`
	Checks   []Check   `json:"checks"`
}

// Verifier runs verification containers against a Docker daemon.
type Verifier struct {
	client     DockerClient
	runTimeout time.Duration
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Client DockerClient
	// RunTimeout bounds each verification container. Zero means 2m.
	RunTimeout time.Duration
}

const defaultRunTimeout = 2 * time.Minute

func NewVerifier(config VerifierConfig) (*Verifier, error) {
	if config.Client == nil {
		return nil, errors.New("docker client is required")
	}
	if config.RunTimeout == 0 {
		config.RunTimeout = defaultRunTimeout
	}
	return &Verifier{client: config.Client, runTimeout: config.RunTimeout}, nil
}

// VerifyOptions carries per-run inputs beyond the definition.
type VerifyOptions struct {
	// Manifest is the flattened requirements content. When set, the
	// installer is re-run against it inside the image.
	Manifest string
}

// Verify runs every check against the image. Failed checks are recorded
// in the report; only daemon errors abort.
func (v *Verifier) Verify(ctx context.Context, imageRef string, d provision.Definition, opts VerifyOptions) (*Report, error) {
	def := d.WithDefaults()
	version, err := pyver.New(def.Python)
	if err != nil {
		return nil, errors.Wrap(err, "verification requires a fully pinned interpreter")
	}
	inspect, err := v.client.ImageInspect(ctx, imageRef)
	if err != nil {
		return nil, errors.Wrapf(err, "inspecting image %q", imageRef)
	}
	report := &Report{Image: imageRef, Python: def.Python, Verified: time.Now().UTC()}
	checks := []func(context.Context) (Check, error){
		func(ctx context.Context) (Check, error) { return v.checkPythonVersion(ctx, imageRef, version) },
		func(ctx context.Context) (Check, error) { return v.checkInterpreterPath(ctx, imageRef, version) },
	}
	if opts.Manifest != "" {
		checks = append(checks, func(ctx context.Context) (Check, error) {
			return v.checkManifestInstall(ctx, imageRef, opts.Manifest)
		})
	}
	checks = append(checks,
		func(ctx context.Context) (Check, error) { return v.checkDependencies(ctx, imageRef) },
		func(ctx context.Context) (Check, error) { return v.checkTimezone(ctx, imageRef, def.Timezone) },
		func(ctx context.Context) (Check, error) { return v.checkTimezoneFile(ctx, imageRef, def.Timezone) },
		func(ctx context.Context) (Check, error) { return v.checkLocale(ctx, imageRef, def.Locale) },
	)
	for _, fn := range checks {
		check, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		report.Checks = append(report.Checks, check)
	}
	report.Checks = append(report.Checks,
		checkEnvironment(inspect, def, version),
		checkWorkdir(inspect, def),
		checkCommand(inspect))
	report.Passed = true
	for _, c := range report.Checks {
		report.Passed = report.Passed && c.Passed
	}
	return report, nil
}

func (v *Verifier) checkPythonVersion(ctx context.Context, imageRef string, version pyver.Version) (Check, error) {
	check := Check{Name: "python-version", Want: "Python " + version.String()}
	res, err := v.run(ctx, imageRef, []string{"python3", "--version"})
	if err != nil {
		return check, err
	}
	check.Got = strings.TrimSpace(res.Output)
	check.Passed = res.ExitCode == 0 && check.Got == check.Want
	if !check.Passed {
		check.Detail = res.Output
	}
	return check, nil
}

func (v *Verifier) checkInterpreterPath(ctx context.Context, imageRef string, version pyver.Version) (Check, error) {
	check := Check{Name: "interpreter-path", Want: provision.PrefixFor(version) + "/bin/python3"}
	res, err := v.run(ctx, imageRef, []string{"sh", "-c", "command -v python3"})
	if err != nil {
		return check, err
	}
	check.Got = strings.TrimSpace(res.Output)
	check.Passed = res.ExitCode == 0 && check.Got == check.Want
	if !check.Passed {
		check.Detail = res.Output
	}
	return check, nil
}

// installScript re-runs the installer against the manifest the image
// was built from. With every pin already satisfied this is a no-op
// install; a non-zero exit means the shipped environment drifted.
func installScript(manifest string) string {
	return fmt.Sprintf("cat > /tmp/requirements.txt <<'EOF_MANIFEST'\n%s\nEOF_MANIFEST\npython3 -m pip install --no-cache-dir -r /tmp/requirements.txt",
		strings.TrimRight(manifest, "\n"))
}

func (v *Verifier) checkManifestInstall(ctx context.Context, imageRef, manifest string) (Check, error) {
	check := Check{Name: "manifest-install", Want: "pip install exits 0 against the bundled manifest"}
	res, err := v.run(ctx, imageRef, []string{"sh", "-c", installScript(manifest)})
	if err != nil {
		return check, err
	}
	check.Passed = res.ExitCode == 0
	if check.Passed {
		check.Got = "ok"
	} else {
		check.Got = fmt.Sprintf("exit %d", res.ExitCode)
		check.Detail = res.Output
	}
	return check, nil
}

func (v *Verifier) checkDependencies(ctx context.Context, imageRef string) (Check, error) {
	check := Check{Name: "dependencies", Want: "pip check reports no broken requirements"}
	res, err := v.run(ctx, imageRef, []string{"python3", "-m", "pip", "check"})
	if err != nil {
		return check, err
	}
	check.Got = strings.TrimSpace(res.Output)
	check.Passed = res.ExitCode == 0
	if !check.Passed {
		check.Detail = res.Output
	}
	return check, nil
}

func (v *Verifier) checkTimezone(ctx context.Context, imageRef, timezone string) (Check, error) {
	check := Check{Name: "timezone", Want: "/usr/share/zoneinfo/" + timezone}
	res, err := v.run(ctx, imageRef, []string{"sh", "-c", "readlink -f /etc/localtime"})
	if err != nil {
		return check, err
	}
	check.Got = strings.TrimSpace(res.Output)
	check.Passed = res.ExitCode == 0 && check.Got == check.Want
	if !check.Passed {
		check.Detail = res.Output
	}
	return check, nil
}

// checkTimezoneFile reads /etc/timezone, which Debian keeps alongside the
// localtime symlink and some tools consult directly.
func (v *Verifier) checkTimezoneFile(ctx context.Context, imageRef, timezone string) (Check, error) {
	check := Check{Name: "timezone-file", Want: timezone}
	res, err := v.run(ctx, imageRef, []string{"sh", "-c", "cat /etc/timezone"})
	if err != nil {
		return check, err
	}
	check.Got = strings.TrimSpace(res.Output)
	check.Passed = res.ExitCode == 0 && check.Got == check.Want
	if !check.Passed {
		check.Detail = res.Output
	}
	return check, nil
}

func (v *Verifier) checkLocale(ctx context.Context, imageRef, locale string) (Check, error) {
	check := Check{Name: "locale", Want: locale}
	res, err := v.run(ctx, imageRef, []string{"sh", "-c", "locale -a"})
	if err != nil {
		return check, err
	}
	want := normalizeLocale(locale)
	for _, line := range strings.Split(res.Output, "\n") {
		if normalizeLocale(strings.TrimSpace(line)) == want {
			check.Got = strings.TrimSpace(line)
			break
		}
	}
	check.Passed = res.ExitCode == 0 && check.Got != ""
	if !check.Passed {
		check.Detail = res.Output
	}
	return check, nil
}

// normalizeLocale folds the spellings locale tooling uses for the same
// locale, like ja_JP.UTF-8 against the ja_JP.utf8 that locale -a prints.
func normalizeLocale(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "-", "")
}

func imageConfig(inspect image.InspectResponse) ocispec.ImageConfig {
	if inspect.Config == nil {
		return ocispec.ImageConfig{}
	}
	return inspect.Config.ImageConfig
}

func checkEnvironment(inspect image.InspectResponse, def provision.Definition, version pyver.Version) Check {
	check := Check{Name: "environment", Want: "HOME, PATH, PYTHON_VERSION, TZ, LANG set per definition"}
	env := make(map[string]string)
	for _, kv := range imageConfig(inspect).Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	expected := map[string]string{
		"HOME":           def.Home,
		"PYTHON_VERSION": version.String(),
		"TZ":             def.Timezone,
		"LANG":           def.Locale,
	}
	for k, v := range def.Env {
		expected[k] = v
	}
	var mismatches []string
	for _, k := range sortedKeys(expected) {
		if env[k] != expected[k] {
			mismatches = append(mismatches, fmt.Sprintf("%s=%q, want %q", k, env[k], expected[k]))
		}
	}
	if binDir := provision.PrefixFor(version) + "/bin"; !strings.HasPrefix(env["PATH"], binDir+":") {
		mismatches = append(mismatches, fmt.Sprintf("PATH=%q does not lead with %s", env["PATH"], binDir))
	}
	check.Passed = len(mismatches) == 0
	if check.Passed {
		check.Got = "ok"
	} else {
		check.Got = "mismatched environment"
		check.Detail = strings.Join(mismatches, "\n")
	}
	return check
}

func checkWorkdir(inspect image.InspectResponse, def provision.Definition) Check {
	check := Check{Name: "workdir", Want: def.Workdir, Got: imageConfig(inspect).WorkingDir}
	check.Passed = check.Got == check.Want
	return check
}

func checkCommand(inspect image.InspectResponse) Check {
	cmd := imageConfig(inspect).Cmd
	check := Check{Name: "default-command", Want: "python3", Got: strings.Join(cmd, " ")}
	check.Passed = len(cmd) == 1 && cmd[0] == "python3"
	return check
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
