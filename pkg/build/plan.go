// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"context"

	"github.com/uecboard/keiji/pkg/provision"
)

// Plan represents any execution plan type.
type Plan any

// Planner generates execution plans from provisioning inputs. Each
// executor expects a specific Plan type so any conformant planner can
// be used.
type Planner[T Plan] interface {
	GeneratePlan(ctx context.Context, input provision.Input, opts PlanOptions) (T, error)
}
