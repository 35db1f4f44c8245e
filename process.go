package horunner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoResult is returned when a child process exits without printing a
// valid result.
var ErrNoResult = errors.New("child process produced no result")

// SlotEnv is the environment variable carrying the slot number into
// process-mode children.
const SlotEnv = "HYPEROPT_NUM"

// childProcess evaluates each candidate in a fresh child process: the
// candidate is written as JSON on stdin and a Result is read as JSON from
// the last non-empty line of stdout. A non-zero exit or a missing result is
// an error, which the unit turns into a crash.
func childProcess(command, env []string) evaluateFunc {
	return func(ctx context.Context, slot int, params Params) (Result, error) {
		payload, err := json.Marshal(params)
		if err != nil {
			return Result{}, fmt.Errorf("marshal params: %w", err)
		}

		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Env = append(append(os.Environ(), env...), SlotEnv+"="+strconv.Itoa(slot))
		cmd.Stdin = bytes.NewReader(payload)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return Result{}, fmt.Errorf("%w: %w: %s", ErrNoResult, err, strings.TrimSpace(stderr.String()))
		}

		return decodeResult(stdout.Bytes())
	}
}

func decodeResult(out []byte) (Result, error) {
	var last string

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}

	if last == "" {
		return Result{}, ErrNoResult
	}

	var r Result
	if err := json.Unmarshal([]byte(last), &r); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNoResult, err)
	}

	if !r.Status.Valid() {
		return Result{}, fmt.Errorf("%w: unknown status %q", ErrNoResult, r.Status)
	}

	return r, nil
}

// ServeWorker is the child side of process mode: it reads one candidate as
// JSON from r, evaluates it with ev and writes the Result as one JSON line
// to w. An evaluator error is returned without writing anything, so the
// parent sees a crash.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer, ev Evaluator) error {
	var params Params
	if err := json.NewDecoder(r).Decode(&params); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	result, err := ev.Evaluate(ctx, params)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	return json.NewEncoder(w).Encode(result.normalize())
}
