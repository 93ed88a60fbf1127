package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/knots/knots/internal/app"
	"github.com/knots/knots/internal/telemetry"
)

func TestExitCodeReturnsNilForNilError(t *testing.T) {
	logger = telemetry.Default()
	if err := exitCode(nil); err != nil {
		t.Errorf("exitCode(nil) = %v, want nil", err)
	}
}

func TestExitCodeClassifiesAppError(t *testing.T) {
	logger = telemetry.Default()

	appErr := &app.Error{Kind: app.KindNotFound, ID: "k-123"}
	err := exitCode(appErr)

	if !errors.Is(err, appErr) && err != appErr {
		t.Errorf("exitCode did not return the original error: %v", err)
	}
}

func TestPrintResultJSON(t *testing.T) {
	origJSON := jsonOutput
	defer func() { jsonOutput = origJSON }()
	jsonOutput = true

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	type payload struct {
		ID string `json:"id"`
	}
	if err := printResult(payload{ID: "k-1"}); err != nil {
		t.Fatalf("printResult() error = %v", err)
	}

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	os.Stdout = oldStdout

	var got payload
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if got.ID != "k-1" {
		t.Errorf("got ID %q, want %q", got.ID, "k-1")
	}
}
