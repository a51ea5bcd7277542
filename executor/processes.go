package executor

import (
	"context"
	"encoding/json"

	"github.com/romanqed/qjazz/process"
)

// Processes lists the process descriptors advertised by service,
// aggregating the broadcast "list_processes" inspect reply across
// every known destination and deduplicating by process ID, mirroring
// executor.py's _processes.
func (e *Executor) Processes(ctx context.Context, service string) ([]process.Descriptor, error) {
	dests, err := e.destinationsOrErr(service)
	if err != nil {
		return nil, err
	}
	replies, err := e.broker.Inspect(ctx, "list_processes", dests, true, nil, e.cfg.InspectTimeout)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []process.Descriptor
	for _, raw := range replies {
		var descs []process.Descriptor
		if err := json.Unmarshal(raw, &descs); err != nil {
			continue
		}
		for _, d := range descs {
			if _, ok := seen[d.ID]; ok {
				continue
			}
			seen[d.ID] = struct{}{}
			out = append(out, d)
		}
	}
	return out, nil
}

// Describe resolves a single process descriptor for service, asking an
// addressed destination for it, mirroring executor.py's _describe.
func (e *Executor) Describe(ctx context.Context, service, processID, projectPath string) (*process.Descriptor, error) {
	dests, err := e.destinationsOrErr(service)
	if err != nil {
		return nil, err
	}
	reply, err := e.broker.Inspect(ctx, "describe_process", dests, false, map[string]any{
		"ident":        processID,
		"project_path": projectPath,
	}, e.cfg.InspectTimeout)
	if err != nil {
		return nil, err
	}
	raw := firstReply(reply)
	if raw == nil || string(raw) == "null" {
		return nil, ErrProcessNotFound
	}
	var d process.Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
