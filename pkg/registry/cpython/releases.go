// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package cpython

import (
	"time"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/pyver"
)

func release(version, dateStr string) Release {
	v, err := pyver.New(version)
	if err != nil {
		panic(errors.Wrapf(err, "parsing version '%s'", version))
	}
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		panic(errors.Wrapf(err, "parsing date '%s'", dateStr))
	}
	return Release{Version: v, Date: date}
}

// Generated using:
// curl -s https://www.python.org/api/v2/downloads/release/ | jq -r 'map(select(.is_published==true and .pre_release==false) | {ver: (.name | capture("(?<v>3\\.(?:[89]|1[0-9])\\.[0-9]+)$").v), date: (.release_date | split("T")[0])}) | sort_by(.ver | split(".") | map(tonumber)) | .[] | "release(\"" + .ver + "\", \"" + .date + "\"),"'
var KnownReleases = []Release{
	release("3.8.0", "2019-10-14"),
	release("3.8.1", "2019-12-18"),
	release("3.8.2", "2020-02-24"),
	release("3.8.3", "2020-05-13"),
	release("3.8.4", "2020-07-13"),
	release("3.8.5", "2020-07-20"),
	release("3.8.6", "2020-09-24"),
	release("3.8.7", "2020-12-21"),
	release("3.8.8", "2021-02-19"),
	release("3.8.9", "2021-04-02"),
	release("3.8.10", "2021-05-03"),
	release("3.8.11", "2021-06-28"),
	release("3.8.12", "2021-08-30"),
	release("3.8.13", "2022-03-16"),
	release("3.8.14", "2022-09-06"),
	release("3.8.15", "2022-10-11"),
	release("3.8.16", "2022-12-06"),
	release("3.8.17", "2023-06-06"),
	release("3.8.18", "2023-08-24"),
	release("3.8.19", "2024-03-19"),
	release("3.8.20", "2024-09-06"),
	release("3.9.0", "2020-10-05"),
	release("3.9.1", "2020-12-07"),
	release("3.9.2", "2021-02-19"),
	release("3.9.3", "2021-04-02"),
	release("3.9.4", "2021-04-04"),
	release("3.9.5", "2021-05-03"),
	release("3.9.6", "2021-06-28"),
	release("3.9.7", "2021-08-30"),
	release("3.9.8", "2021-11-05"),
	release("3.9.9", "2021-11-15"),
	release("3.9.10", "2022-01-14"),
	release("3.9.11", "2022-03-16"),
	release("3.9.12", "2022-03-23"),
	release("3.9.13", "2022-05-17"),
	release("3.9.14", "2022-09-06"),
	release("3.9.15", "2022-10-11"),
	release("3.9.16", "2022-12-06"),
	release("3.9.17", "2023-06-06"),
	release("3.9.18", "2023-08-24"),
	release("3.9.19", "2024-03-19"),
	release("3.9.20", "2024-09-06"),
	release("3.9.21", "2024-12-03"),
	release("3.9.22", "2025-04-08"),
	release("3.9.23", "2025-06-03"),
	release("3.10.0", "2021-10-04"),
	release("3.10.1", "2021-12-06"),
	release("3.10.2", "2022-01-14"),
	release("3.10.3", "2022-03-16"),
	release("3.10.4", "2022-03-24"),
	release("3.10.5", "2022-06-06"),
	release("3.10.6", "2022-08-02"),
	release("3.10.7", "2022-09-06"),
	release("3.10.8", "2022-10-11"),
	release("3.10.9", "2022-12-06"),
	release("3.10.10", "2023-02-08"),
	release("3.10.11", "2023-04-05"),
	release("3.10.12", "2023-06-06"),
	release("3.10.13", "2023-08-24"),
	release("3.10.14", "2024-03-19"),
	release("3.10.15", "2024-09-07"),
	release("3.10.16", "2024-12-03"),
	release("3.10.17", "2025-04-08"),
	release("3.10.18", "2025-06-03"),
	release("3.11.0", "2022-10-24"),
	release("3.11.1", "2022-12-06"),
	release("3.11.2", "2023-02-08"),
	release("3.11.3", "2023-04-05"),
	release("3.11.4", "2023-06-06"),
	release("3.11.5", "2023-08-24"),
	release("3.11.6", "2023-10-02"),
	release("3.11.7", "2023-12-04"),
	release("3.11.8", "2024-02-06"),
	release("3.11.9", "2024-04-02"),
	release("3.11.10", "2024-09-07"),
	release("3.11.11", "2024-12-03"),
	release("3.11.12", "2025-04-08"),
	release("3.11.13", "2025-06-03"),
	release("3.12.0", "2023-10-02"),
	release("3.12.1", "2023-12-08"),
	release("3.12.2", "2024-02-06"),
	release("3.12.3", "2024-04-09"),
	release("3.12.4", "2024-06-06"),
	release("3.12.5", "2024-08-06"),
	release("3.12.6", "2024-09-06"),
	release("3.12.7", "2024-10-01"),
	release("3.12.8", "2024-12-03"),
	release("3.12.9", "2025-02-04"),
	release("3.12.10", "2025-04-08"),
	release("3.12.11", "2025-06-03"),
	release("3.13.0", "2024-10-07"),
	release("3.13.1", "2024-12-03"),
	release("3.13.2", "2025-02-04"),
	release("3.13.3", "2025-04-08"),
	release("3.13.4", "2025-06-03"),
	release("3.13.5", "2025-06-11"),
	release("3.13.6", "2025-08-06"),
	release("3.13.7", "2025-08-14"),
}
