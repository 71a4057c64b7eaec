// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// OS represents a supported operating system/distribution family.
type OS string

const (
	Debian  OS = "debian"
	Ubuntu  OS = "ubuntu"
	Unknown OS = "unknown"
)

// PackageManagerCommands contains the commands needed for package
// management on a specific OS.
type PackageManagerCommands struct {
	UpdateCmd   string
	InstallCmd  string
	InstallArgs []string
	CleanupCmd  string
}

// InstallCommand generates the full package installation command for the
// given packages.
func (p PackageManagerCommands) InstallCommand(packages []string) string {
	cmdArgs := slices.Concat([]string{p.InstallCmd}, p.InstallArgs, packages)
	return strings.Join(cmdArgs, " ")
}

// osPackageManagers maps OS families to their package manager commands.
// The provisioning scripts assume apt package names, so only apt-based
// families are supported.
var osPackageManagers = map[OS]PackageManagerCommands{
	Debian: {
		UpdateCmd:   "apt-get update",
		InstallCmd:  "apt-get install",
		InstallArgs: []string{"-y", "--no-install-recommends"},
		CleanupCmd:  "rm -rf /var/lib/apt/lists/*",
	},
	Ubuntu: {
		UpdateCmd:   "apt-get update",
		InstallCmd:  "apt-get install",
		InstallArgs: []string{"-y", "--no-install-recommends"},
		CleanupCmd:  "rm -rf /var/lib/apt/lists/*",
	},
}

// GetPackageManagerCommands returns the package manager commands for the
// given OS.
func GetPackageManagerCommands(os OS) (PackageManagerCommands, error) {
	cmd, ok := osPackageManagers[os]
	if !ok {
		return PackageManagerCommands{}, errors.Errorf("unsupported base image OS: %q", os)
	}
	return cmd, nil
}

// DetectOS detects the OS family from a base image name.
func DetectOS(baseImage string) OS {
	switch {
	case strings.Contains(baseImage, "debian"):
		return Debian
	case strings.Contains(baseImage, "ubuntu"):
		return Ubuntu
	default:
		return Unknown
	}
}
