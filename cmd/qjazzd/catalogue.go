package main

import (
	"context"
	"encoding/json"

	"github.com/romanqed/qjazz/process"
)

// demoCatalogue returns the built-in process catalogue qjazzd serves
// when no external catalogue is wired in: a minimal "echo" process
// that mirrors its "msg" input back as "output", used to exercise the
// synchronous execution path end to end.
func demoCatalogue() process.Catalogue {
	return process.Catalogue{
		"echo": {
			Descriptor: process.Descriptor{
				ID:          "echo",
				Title:       "Echo",
				Description: "Returns the msg input unchanged as output.",
				Version:     "1.0.0",
				Inputs: map[string]process.InputDescription{
					"msg": {Title: "Message", MinOccurs: 1, MaxOccurs: 1},
				},
				Outputs: map[string]process.OutputDescription{
					"output": {Title: "Echoed message"},
				},
				JobControlOptions: []process.JobControlOption{
					process.SyncExecute,
					process.AsyncExecute,
					process.Dismiss,
				},
			},
			Func: echoFunc,
		},
	}
}

func echoFunc(ctx context.Context, request process.Request, feedback process.Feedback, jctx *process.JobContext) (process.Result, error) {
	raw, ok := request.Inputs["msg"]
	if !ok {
		return process.Result{}, &process.InputValueError{Message: "missing required input \"msg\""}
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return process.Result{}, &process.InputValueError{Message: "input \"msg\" must be a string"}
	}
	feedback.Progress(100, "done")
	output, err := json.Marshal(msg)
	if err != nil {
		return process.Result{}, err
	}
	return process.Result{Outputs: map[string]json.RawMessage{"output": output}}, nil
}
