package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/codeforge/assistant/runtime/apperr"
	"github.com/codeforge/assistant/runtime/domain"
)

// decodeRequest recovers a domain.Request from a WorkflowFunc's input. The
// in-memory engine backend hands the concrete value straight through; the
// Temporal backend round-trips it through its data converter first, which
// decodes an "any"-typed parameter into a generic map, so the fallback path
// re-marshals and re-parses it into the concrete type.
func decodeRequest(input any) (domain.Request, error) {
	if req, ok := input.(domain.Request); ok {
		return req, nil
	}
	var req domain.Request
	if err := roundTrip(input, &req); err != nil {
		return domain.Request{}, apperr.Wrap(apperr.KindInvalidInput, "cannot decode workflow input", err)
	}
	return req, nil
}

// decodeRunStageInput mirrors decodeRequest for the RunStage activity's
// input type.
func decodeRunStageInput(input any) (runStageInput, error) {
	if in, ok := input.(runStageInput); ok {
		return in, nil
	}
	var in runStageInput
	if err := roundTrip(input, &in); err != nil {
		return runStageInput{}, apperr.Wrap(apperr.KindInvalidInput, "cannot decode activity input", err)
	}
	return in, nil
}

// decodeRunStageOutput mirrors decodeRequest for the RunStage activity's
// result type, used by the workflow function after ExecuteActivity.
func decodeRunStageOutput(v any) (runStageOutput, error) {
	if out, ok := v.(runStageOutput); ok {
		return out, nil
	}
	var out runStageOutput
	if err := roundTrip(v, &out); err != nil {
		return runStageOutput{}, fmt.Errorf("cannot decode activity output: %w", err)
	}
	return out, nil
}

func roundTrip(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
