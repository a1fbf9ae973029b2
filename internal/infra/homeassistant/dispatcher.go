package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"home-voice/internal/application"
	"home-voice/internal/domain"
	"home-voice/internal/metrics"
)

// Dispatcher routes each command of a batch to a simple function or to a
// Home Assistant service call and collects one result per command.
type Dispatcher struct {
	exec      *Executor
	registry  *Registry
	functions application.SimpleFunctions
	logger    *slog.Logger
}

func NewDispatcher(exec *Executor, registry *Registry, functions application.SimpleFunctions, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		exec:      exec,
		registry:  registry,
		functions: functions,
		logger:    logger,
	}
}

// Dispatch processes the batch in order. Validation and transport failures
// become error results and never stop the batch; only an unexpected simple
// function failure is returned as an error, together with the results
// gathered so far. An empty batch yields nil.
func (d *Dispatcher) Dispatch(ctx context.Context, batch domain.CommandBatch, opts application.SendOptions) ([]domain.CommandResult, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if len(batch.Commands) == 0 {
		return nil, nil
	}

	all := batch.CommandMaps()
	results := make([]domain.CommandResult, 0, len(batch.Commands))

	for i, cmd := range batch.Commands {
		action, target := cmd.Normalized()
		if opts.Debug {
			d.logger.Info("processing command", "action", action, "target", target, "data", cmd.Data)
		}

		name, kind := d.classify(all[i])

		var result domain.CommandResult
		switch kind {
		case domain.KindSimpleFunction:
			var err error
			result, err = d.runSimpleFunction(ctx, name, action, target, cmd.Data, opts, all)
			if err != nil {
				metrics.RecordCommand(string(kind), metrics.OutcomeError)
				return results, fmt.Errorf("running simple function %s: %w", name, err)
			}
		default:
			result = d.runDeviceCommand(ctx, action, target, cmd.Data)
		}

		outcome := metrics.OutcomeSuccess
		if result.Failed() {
			outcome = metrics.OutcomeError
		}
		metrics.RecordCommand(string(kind), outcome)

		results = append(results, result)
	}

	if opts.Debug {
		d.logger.Info("all command results", "results", results)
	}

	return results, nil
}

func (d *Dispatcher) classify(command map[string]any) (string, domain.CommandKind) {
	if d.functions == nil {
		return "", domain.KindDevice
	}
	if name, ok := d.functions.FindMatchingAction(command); ok {
		return name, domain.KindSimpleFunction
	}
	return "", domain.KindDevice
}

func (d *Dispatcher) runSimpleFunction(
	ctx context.Context,
	name, action, target string,
	data map[string]any,
	opts application.SendOptions,
	all []map[string]any,
) (domain.CommandResult, error) {
	args := maps.Clone(data)
	if args == nil {
		args = map[string]any{}
	}

	needs := d.functions.Context(name)
	if needs.NeedsUser && opts.UserID != "" {
		args["user_id"] = opts.UserID
	}
	if needs.NeedsBatch {
		args["current_request_commands"] = all
	}

	response, err := d.functions.Call(ctx, name, args)
	if errors.Is(err, application.ErrFunctionNotFound) {
		d.logger.Warn("simple function not registered", "function", name)
		response, err = nil, nil
	}
	if err != nil {
		return domain.CommandResult{}, err
	}

	result := domain.SucceededResult(target, action)
	result.Response = response
	result.Type = domain.KindSimpleFunction
	result.DisplayName = d.functions.DisplayName(name)
	return result, nil
}

func (d *Dispatcher) runDeviceCommand(ctx context.Context, action, target string, data map[string]any) domain.CommandResult {
	entity, ok := d.registry.Lookup(target)
	if !ok {
		return domain.FailedResult(target, action, fmt.Sprintf("Unknown target: %s", target))
	}

	if valid, _ := ValidateActionForEntity(action, entity); !valid {
		return domain.FailedResult(target, action, fmt.Sprintf("Action '%s' not supported for target '%s'", action, target))
	}

	serviceDomain := entity.Domain()
	schema := d.registry.GetServiceInfo(ctx, serviceDomain, action)
	if valid, missing := ValidateRequiredFields(schema, data); !valid {
		return domain.FailedResult(target, action,
			fmt.Sprintf("Missing required fields for action '%s': %s", action, formatFieldList(missing)))
	}

	path := fmt.Sprintf("/api/services/%s/%s", serviceDomain, action)
	payload := map[string]any{"entity_id": entity.EntityID}
	maps.Copy(payload, data)

	resp, err := d.exec.Post(ctx, path, payload)
	if err != nil {
		msg := fmt.Sprintf("Failed to execute command after retries: %v", err)
		d.logger.Error("command failed", "action", action, "target", target, "error", err)

		result := domain.FailedResult(target, action, msg)
		result.URL = d.exec.URL(path)
		result.Payload = payload
		return result
	}

	body, err := resp.Decode()
	if err != nil {
		d.logger.Error("failed to parse service response", "action", action, "target", target, "error", err)

		result := domain.FailedResult(target, action, fmt.Sprintf("Failed to parse response JSON: %v", err))
		result.Status = resp.StatusCode
		result.RawResponse = string(resp.Body)
		return result
	}

	d.logger.Info("command executed", "action", action, "target", target)

	result := domain.SucceededResult(target, action)
	result.Status = resp.StatusCode
	result.Response = body
	return result
}
