// Package scripting evaluates user-supplied JavaScript against a completed
// response, using the otto pure-Go interpreter.  The script sees the
// response as globals and can fail the invocation through assert(), which
// maps to the pipeline assertion exit code.
package scripting

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/robertkrimen/otto"

	"github.com/quicpulse/quicpulse/status"
)

// AssertionError marks a failed assert() so the top level can map it to
// exit code 10 instead of the generic error exit.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string { return "assertion failed: " + e.Message }

// Evaluator runs response scripts.  A mutex serialises access to the shared
// VM; create one Evaluator per workflow run for parallel evaluation.
type Evaluator struct {
	vm *otto.Otto
	mu sync.Mutex
}

// New creates an Evaluator with the assert/log helpers pre-loaded.
func New() (*Evaluator, error) {
	vm := otto.New()

	if err := vm.Set("assert", func(call otto.FunctionCall) otto.Value {
		ok, _ := call.Argument(0).ToBoolean()
		if !ok {
			msg := "assertion failed"
			if m := call.Argument(1); m.IsDefined() {
				msg, _ = m.ToString()
			}
			panic(vm.MakeCustomError("AssertionError", msg))
		}
		return otto.UndefinedValue()
	}); err != nil {
		return nil, status.Wrap(status.KindConfig, err, "install assert helper")
	}

	if err := vm.Set("log", func(call otto.FunctionCall) otto.Value {
		parts := make([]string, 0, len(call.ArgumentList))
		for _, arg := range call.ArgumentList {
			s, _ := arg.ToString()
			parts = append(parts, s)
		}
		fmt.Fprintln(os.Stderr, strings.Join(parts, " "))
		return otto.UndefinedValue()
	}); err != nil {
		return nil, status.Wrap(status.KindConfig, err, "install log helper")
	}

	return &Evaluator{vm: vm}, nil
}

// Run evaluates the script with the response exposed as globals:
//
//	status   – numeric status code
//	headers  – lowercase header-name → first-value object
//	body     – the raw body string
//	json     – the parsed body when it is valid JSON, else null
//
// A failed assert() returns *AssertionError; other script errors return a
// config-kind error.
func (e *Evaluator) Run(script string, statusCode int, header http.Header, body []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.vm.Set("status", statusCode)

	headers := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	e.vm.Set("headers", headers)
	e.vm.Set("body", string(body))

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if value, err := e.vm.ToValue(parsed); err == nil {
			e.vm.Set("json", value)
		} else {
			e.vm.Set("json", otto.NullValue())
		}
	} else {
		e.vm.Set("json", otto.NullValue())
	}

	_, err := e.vm.Run(script)
	if err == nil {
		return nil
	}
	if ottoErr, ok := err.(*otto.Error); ok && strings.Contains(ottoErr.Error(), "AssertionError") {
		return &AssertionError{Message: ottoErr.Error()}
	}
	if strings.Contains(err.Error(), "AssertionError") {
		return &AssertionError{Message: err.Error()}
	}
	return status.Wrap(status.KindConfig, err, "script error")
}

// RunSource resolves a --script argument: a readable path loads the file,
// anything else evaluates as an inline expression.
func (e *Evaluator) RunSource(source string, statusCode int, header http.Header, body []byte) error {
	script := source
	if raw, err := os.ReadFile(source); err == nil {
		script = string(raw)
	}
	return e.Run(script, statusCode, header, body)
}
