// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/uecboard/keiji/internal/gitx"
	"github.com/uecboard/keiji/internal/llm"
	"github.com/uecboard/keiji/internal/pyver"
	"github.com/uecboard/keiji/pkg/build"
	"github.com/uecboard/keiji/pkg/build/docker"
	"github.com/uecboard/keiji/pkg/ingest"
	"github.com/uecboard/keiji/pkg/manifest"
	"github.com/uecboard/keiji/pkg/provision"
	"github.com/uecboard/keiji/pkg/registry/cpython"
	"github.com/uecboard/keiji/pkg/registry/pypi"
	"github.com/uecboard/keiji/pkg/verify"
)

var (
	defPath     = flag.String("f", "runtime.yaml", "Path to the runtime definition")
	storeURL    = flag.String("store", "", "Asset store URL for build artifacts (gs://bucket/prefix or file:///dir)")
	platform    = flag.String("platform", "", "Image platform, like linux/amd64 (default: daemon default)")
	pipIndex    = flag.String("pip-index-url", "", "Package index override for dependency installation")
	makeJobs    = flag.Int("make-jobs", 0, "Interpreter compile parallelism (default: all cores)")
	timeout     = flag.Duration("timeout", time.Hour, "Maximum build duration")
	exportImage = flag.Bool("export-image", false, "Export the built image to the asset store")
	imageRef    = flag.String("image", "", "Image reference to verify")
	outFile     = flag.String("o", "event_data.json", "Output file for the extracted event")
	model       = flag.String("model", "", "Gemini model override")
)

var (
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	white  = color.New(color.FgWhite).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "keiji [subcommand]",
	Short: "A CLI tool for provisioning and feeding the campus board",
}

// loadDefinition reads the definition and pins its interpreter version,
// resolving a series like "3.11" against the release registry.
func loadDefinition(ctx context.Context, defPath string) (provision.Definition, error) {
	f, err := os.Open(defPath)
	if err != nil {
		return provision.Definition{}, errors.Wrap(err, "opening definition")
	}
	defer f.Close()
	d, err := provision.LoadDefinition(f)
	if err != nil {
		return provision.Definition{}, err
	}
	d = d.WithDefaults()
	if _, err := pyver.New(d.Python); err == nil {
		return d, nil
	}
	series, err := pyver.ParseSeries(d.Python)
	if err != nil {
		return provision.Definition{}, errors.Errorf("python version %q is neither a pin nor a series", d.Python)
	}
	v, err := cpython.NewHTTPRegistry(http.DefaultClient).ResolveSeries(ctx, series)
	if err != nil {
		// The baked-in release table still answers when python.org is unreachable.
		fmt.Fprintln(os.Stderr, yellow("NOTE:"), white(" release feed unavailable, using known releases: "+err.Error()))
		v, err = cpython.StaticRegistry{}.ResolveSeries(ctx, series)
		if err != nil {
			return provision.Definition{}, err
		}
	}
	fmt.Fprintln(os.Stderr, yellow("NOTE:"), white(fmt.Sprintf(" python %s resolved to %s", d.Python, v)))
	d.Python = v.String()
	return d, nil
}

// loadManifestContent flattens the definition's requirements manifest,
// reading from its git source when one is set and from the directory of
// the definition file otherwise.
func loadManifestContent(ctx context.Context, d provision.Definition, baseDir string) (string, error) {
	if d.Requirements == "" {
		return "", nil
	}
	var fs billy.Filesystem
	root := d.Requirements
	if d.Source != nil {
		repo, err := gitx.Clone(ctx, d.Source.Repo)
		if err != nil {
			return "", err
		}
		commit, err := gitx.ResolveCommit(repo, d.Source.Ref)
		if err != nil {
			return "", err
		}
		fs, err = gitx.CheckoutCommit(repo, commit)
		if err != nil {
			return "", err
		}
		root = path.Join(d.Source.Dir, d.Requirements)
	} else {
		fs = osfs.New(baseDir)
	}
	m, err := manifest.Load(fs, root)
	if err != nil {
		return "", err
	}
	return m.Render(), nil
}

func buildEnv() provision.BuildEnv {
	return provision.BuildEnv{
		MakeJobs:    *makeJobs,
		PipIndexURL: *pipIndex,
	}
}

func buildInput(ctx context.Context, defPath string) (provision.Input, error) {
	d, err := loadDefinition(ctx, defPath)
	if err != nil {
		return provision.Input{}, err
	}
	content, err := loadManifestContent(ctx, d, filepath.Dir(defPath))
	if err != nil {
		return provision.Input{}, err
	}
	return provision.Input{
		Definition: d,
		Strategy:   provision.NewStandardStrategy(content),
	}, nil
}

var planCmd = &cobra.Command{
	Use:   "plan [-f runtime.yaml] [-pip-index-url <url>] [-make-jobs N] [-platform <os/arch>]",
	Short: "Render the Dockerfile for a runtime definition",
	Args:  cobra.NoArgs,
	// Silence errors because we will print the error ourselves in main.
	SilenceErrors: true,
	// Don't show usage for every error.
	SilenceUsage: true,
	// RunE because we want errors to affect the return status.
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := buildInput(cmd.Context(), *defPath)
		if err != nil {
			return err
		}
		plan, err := docker.NewBuildPlanner().GeneratePlan(cmd.Context(), input, build.PlanOptions{
			BuildEnv: buildEnv(),
			Platform: *platform,
		})
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), plan.Dockerfile)
		return err
	},
}

var buildCmd = &cobra.Command{
	Use:   "build [-f runtime.yaml] [-store <url>] [-export-image] [-timeout <duration>] [-platform <os/arch>]",
	Short: "Build the runtime image with the local Docker daemon",
	Args:  cobra.NoArgs,
	// Silence errors because we will print the error ourselves in main.
	SilenceErrors: true,
	// Don't show usage for every error.
	SilenceUsage: true,
	// RunE because we want errors to affect the return status.
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := buildInput(cmd.Context(), *defPath)
		if err != nil {
			return err
		}
		buildID := uuid.New().String()
		var store provision.LocatableAssetStore
		if *storeURL != "" {
			store, err = provision.StoreFromURL(cmd.Context(), *storeURL, buildID)
			if err != nil {
				return err
			}
			// The executor records the Dockerfile, logs, and image;
			// the definition that produced them is recorded here.
			w, err := store.Writer(cmd.Context(), provision.DefinitionAsset.For(input.Definition.Target()))
			if err != nil {
				return err
			}
			if err := provision.WriteDefinition(w, input.Definition); err != nil {
				w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
		}
		executor, err := docker.NewBuildExecutor(docker.BuildExecutorConfig{
			Planner:         docker.NewBuildPlanner(),
			CommandExecutor: docker.NewRealCommandExecutor(),
			MaxParallel:     1,
		})
		if err != nil {
			return err
		}
		defer executor.Close(context.Background())
		handle, err := executor.Start(cmd.Context(), input, build.Options{
			BuildID:     buildID,
			Timeout:     *timeout,
			ExportImage: *exportImage,
			BuildEnv:    buildEnv(),
			Platform:    *platform,
			Resources:   build.Resources{AssetStore: store},
		})
		if err != nil {
			return err
		}
		// Drain logs while the build runs; Wait only returns once the
		// stream is closed.
		outputDone := make(chan struct{})
		go func() {
			defer close(outputDone)
			io.Copy(cmd.OutOrStderr(), handle.OutputStream())
		}()
		result, err := handle.Wait(cmd.Context())
		<-outputDone
		if err != nil {
			return err
		}
		if result.Error != nil {
			return result.Error
		}
		fmt.Fprintln(cmd.OutOrStdout(), green("Built "), white(result.ImageTag))
		fmt.Fprintln(cmd.OutOrStdout(), white(fmt.Sprintf("plan %s, build %s, export %s",
			result.Timings.Plan.Round(time.Second),
			result.Timings.Build.Round(time.Second),
			result.Timings.Export.Round(time.Second))))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify -image <ref> [-f runtime.yaml] [-store <url>]",
	Short: "Verify a built image against its runtime definition",
	Args:  cobra.NoArgs,
	// Silence errors because we will print the error ourselves in main.
	SilenceErrors: true,
	// Don't show usage for every error.
	SilenceUsage: true,
	// RunE because we want errors to affect the return status.
	RunE: func(cmd *cobra.Command, args []string) error {
		if *imageRef == "" {
			return errors.New("-image is required")
		}
		d, err := loadDefinition(cmd.Context(), *defPath)
		if err != nil {
			return err
		}
		content, err := loadManifestContent(cmd.Context(), d, filepath.Dir(*defPath))
		if err != nil {
			return err
		}
		client, err := verify.NewClient()
		if err != nil {
			return err
		}
		verifier, err := verify.NewVerifier(verify.VerifierConfig{Client: client})
		if err != nil {
			return err
		}
		report, err := verifier.Verify(cmd.Context(), *imageRef, d, verify.VerifyOptions{Manifest: content})
		if err != nil {
			return err
		}
		for _, check := range report.Checks {
			if check.Passed {
				fmt.Fprintln(cmd.OutOrStdout(), green("PASS "), white(check.Name))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), red("FAIL "), white(fmt.Sprintf("%s: got %q, want %q", check.Name, check.Got, check.Want)))
				if check.Detail != "" {
					fmt.Fprintln(cmd.OutOrStdout(), white(check.Detail))
				}
			}
		}
		if *storeURL != "" {
			store, err := provision.StoreFromURL(cmd.Context(), *storeURL, uuid.New().String())
			if err != nil {
				return err
			}
			w, err := store.Writer(cmd.Context(), provision.ReportAsset.For(d.Target()))
			if err != nil {
				return err
			}
			defer w.Close()
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return errors.Wrap(err, "writing report")
			}
		}
		if !report.Passed {
			return errors.New("verification failed")
		}
		fmt.Fprintln(cmd.OutOrStdout(), green("Verified "), white(*imageRef))
		return nil
	},
}

var manifestCmd = &cobra.Command{
	Use:   "manifest [subcommand]",
	Short: "Inspect dependency manifests",
}

var manifestVerifyCmd = &cobra.Command{
	Use:   "verify <requirements.txt|pyproject.toml>",
	Short: "Check that every manifest entry resolves on the package index",
	Args:  cobra.ExactArgs(1),
	// Silence errors because we will print the error ourselves in main.
	SilenceErrors: true,
	// Don't show usage for every error.
	SilenceUsage: true,
	// RunE because we want errors to affect the return status.
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(osfs.New(filepath.Dir(args[0])), filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if unpinned := m.Unpinned(); len(unpinned) > 0 {
			names := make([]string, len(unpinned))
			for i, r := range unpinned {
				names[i] = r.Name
				if names[i] == "" {
					names[i] = r.Raw
				}
			}
			fmt.Fprintln(cmd.OutOrStderr(), yellow("NOTE:"), white(" unpinned entries: "+strings.Join(names, ", ")))
		}
		bar := pb.New(len(m.Requirements))
		bar.Output = cmd.OutOrStderr()
		bar.Start()
		checks, err := manifest.Verify(cmd.Context(), pypi.HTTPRegistry{Client: http.DefaultClient}, m, func(manifest.Check) {
			bar.Increment()
		})
		bar.Finish()
		if err != nil {
			return err
		}
		var failed int
		for _, check := range checks {
			if check.OK() {
				continue
			}
			failed++
			switch {
			case !check.ProjectFound:
				fmt.Fprintln(cmd.OutOrStdout(), red("FAIL "), white(check.Requirement.Name+": project not found"))
			case check.YankedOnly:
				fmt.Fprintln(cmd.OutOrStdout(), red("FAIL "), white(fmt.Sprintf("%s: version %s only has yanked files", check.Requirement.Name, check.Release)))
			default:
				fmt.Fprintln(cmd.OutOrStdout(), red("FAIL "), white(fmt.Sprintf("%s: version %s not found", check.Requirement.Name, check.Release)))
			}
		}
		if failed > 0 {
			return errors.Errorf("%d of %d entries failed", failed, len(checks))
		}
		fmt.Fprintln(cmd.OutOrStdout(), green("OK "), white(fmt.Sprintf("%d entries resolve", len(checks))))
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [subcommand]",
	Short: "Extract campus event records with Gemini",
}

func newIngestor(ctx context.Context) (*ingest.Ingestor, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY must be set")
	}
	client, err := llm.NewGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return ingest.NewIngestor(ingest.IngestorConfig{
		Client: client,
		Model:  *model,
	})
}

func emitEvent(cmd *cobra.Command, event *ingest.Event) error {
	if err := event.EncodeJSON(cmd.OutOrStdout()); err != nil {
		return err
	}
	if *outFile == "" {
		return nil
	}
	if err := event.WriteFile(*outFile); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStderr(), green("Saved "), white(*outFile))
	return nil
}

var ingestURLCmd = &cobra.Command{
	Use:   "url <page-url> [-o <file>] [-model <name>]",
	Short: "Extract an event record from a web page",
	Args:  cobra.ExactArgs(1),
	// Silence errors because we will print the error ourselves in main.
	SilenceErrors: true,
	// Don't show usage for every error.
	SilenceUsage: true,
	// RunE because we want errors to affect the return status.
	RunE: func(cmd *cobra.Command, args []string) error {
		ig, err := newIngestor(cmd.Context())
		if err != nil {
			return err
		}
		event, err := ig.FromURL(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return emitEvent(cmd, event)
	},
}

var ingestImageCmd = &cobra.Command{
	Use:   "image <poster-file> [-o <file>] [-model <name>]",
	Short: "Extract an event record from a poster image",
	Args:  cobra.ExactArgs(1),
	// Silence errors because we will print the error ourselves in main.
	SilenceErrors: true,
	// Don't show usage for every error.
	SilenceUsage: true,
	// RunE because we want errors to affect the return status.
	RunE: func(cmd *cobra.Command, args []string) error {
		ig, err := newIngestor(cmd.Context())
		if err != nil {
			return err
		}
		event, err := ig.FromImage(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return emitEvent(cmd, event)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().AddGoFlag(flag.Lookup("f"))
	planCmd.Flags().AddGoFlag(flag.Lookup("pip-index-url"))
	planCmd.Flags().AddGoFlag(flag.Lookup("make-jobs"))
	planCmd.Flags().AddGoFlag(flag.Lookup("platform"))

	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().AddGoFlag(flag.Lookup("f"))
	buildCmd.Flags().AddGoFlag(flag.Lookup("store"))
	buildCmd.Flags().AddGoFlag(flag.Lookup("export-image"))
	buildCmd.Flags().AddGoFlag(flag.Lookup("timeout"))
	buildCmd.Flags().AddGoFlag(flag.Lookup("pip-index-url"))
	buildCmd.Flags().AddGoFlag(flag.Lookup("make-jobs"))
	buildCmd.Flags().AddGoFlag(flag.Lookup("platform"))

	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().AddGoFlag(flag.Lookup("f"))
	verifyCmd.Flags().AddGoFlag(flag.Lookup("image"))
	verifyCmd.Flags().AddGoFlag(flag.Lookup("store"))

	rootCmd.AddCommand(manifestCmd)
	manifestCmd.AddCommand(manifestVerifyCmd)

	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestURLCmd)
	ingestURLCmd.Flags().AddGoFlag(flag.Lookup("o"))
	ingestURLCmd.Flags().AddGoFlag(flag.Lookup("model"))
	ingestCmd.AddCommand(ingestImageCmd)
	ingestImageCmd.Flags().AddGoFlag(flag.Lookup("o"))
	ingestImageCmd.Flags().AddGoFlag(flag.Lookup("model"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
