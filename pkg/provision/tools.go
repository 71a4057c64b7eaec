// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"github.com/uecboard/keiji/internal/textwrap"
	"github.com/uecboard/keiji/pkg/provision/flow"
)

func init() {
	flow.Tools.MustRegister(&flow.Tool{
		Name: "cpython-source-build",
		Steps: []flow.Step{{
			Runs: textwrap.Dedent(`
				cd /tmp
				wget -O cpython.tgz https://www.python.org/ftp/python/{{.PythonBase}}/Python-{{.Python}}.tgz
				{{- if .Def.PythonSHA256}}
				echo '{{.Def.PythonSHA256}}  cpython.tgz' | sha256sum -c -
				{{- end}}
				tar -xzf cpython.tgz
				cd Python-{{.Python}}
				./configure --prefix={{.Prefix}} --with-ensurepip=install
				make -j{{if .BuildEnv.MakeJobs}}{{.BuildEnv.MakeJobs}}{{else}}$(nproc){{end}}
				make install
				cd /
				rm -rf /tmp/cpython.tgz /tmp/Python-{{.Python}}`)[1:],
			Needs: []string{
				"build-essential",
				"wget",
				"ca-certificates",
				"zlib1g-dev",
				"libssl-dev",
				"libffi-dev",
				"libsqlite3-dev",
				"libreadline-dev",
				"libbz2-dev",
				"liblzma-dev",
			},
		}},
	})
	flow.Tools.MustRegister(&flow.Tool{
		Name: "pip-requirements",
		Steps: []flow.Step{{
			Runs: textwrap.Dedent(`
				python3 -m pip install --no-cache-dir --upgrade pip
				cat > /tmp/requirements.txt <<'REQUIREMENTS'
				{{.Manifest}}
				REQUIREMENTS
				python3 -m pip install --no-cache-dir{{if .BuildEnv.PipIndexURL}} --index-url {{.BuildEnv.PipIndexURL}}{{end}} -r /tmp/requirements.txt
				rm /tmp/requirements.txt`)[1:],
			Needs: []string{"ca-certificates"},
		}},
	})
	flow.Tools.MustRegister(&flow.Tool{
		Name: "timezone-config",
		Steps: []flow.Step{{
			Runs: textwrap.Dedent(`
				ln -snf /usr/share/zoneinfo/{{.Def.Timezone}} /etc/localtime
				echo '{{.Def.Timezone}}' > /etc/timezone`)[1:],
			Needs: []string{"tzdata"},
		}},
	})
	flow.Tools.MustRegister(&flow.Tool{
		Name: "locale-gen",
		Steps: []flow.Step{{
			Runs: textwrap.Dedent(`
				echo '{{.Def.Locale}} UTF-8' >> /etc/locale.gen
				locale-gen`)[1:],
			Needs: []string{"locales"},
		}},
	})
	// Helper for definition setup steps.
	flow.Tools.MustRegister(&flow.Tool{
		Name: "apt-install",
		Steps: []flow.Step{{
			Runs: textwrap.Dedent(`
				apt-get update
				apt-get install -y --no-install-recommends {{.With.packages}}
				rm -rf /var/lib/apt/lists/*`)[1:],
		}},
	})
}
