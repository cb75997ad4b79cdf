package graph

import (
	"context"

	"lanecore/internal/rolepack"
	"lanecore/internal/turnstate"
)

// RolePackNode produces the researcher/writer/critic contract feeding the
// synthesizer (spec.md §3's Role-Pack Node). tpl is nil when no override
// template is configured.
func RolePackNode(tpl *rolepack.Template) Node {
	return func(ctx context.Context, s turnstate.RunState) (turnstate.StateUpdate, error) {
		contract := rolepack.Build(tpl, s.Plan, s.Intent)
		return turnstate.StateUpdate{ResponseContract: &contract}, nil
	}
}
