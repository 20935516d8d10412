package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_Emit(t *testing.T) {
	data := map[string]int{"delivered": 2}
	text := func(w io.Writer) { fmt.Fprintln(w, "delivered 2 changes") }

	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Emit(data, text))
	assert.Equal(t, "delivered 2 changes\n", buf.String())

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Emit(data, text))
	assert.JSONEq(t, `{"status":"ok","data":{"delivered":2}}`, buf.String())
}

func TestOutputFormatter_FailJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := WrapExitError(CodeUnknownEntity, "check-in failed", errors.New("unknown protocols: run"))
	require.NoError(t, formatter.Fail(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnknownEntity, resp.Error.Code)
	assert.Equal(t, ExitFailure, resp.Error.ExitCode)
	assert.Equal(t, "check-in failed: unknown protocols: run", resp.Error.Message)
}

func TestOutputFormatter_FailText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Fail(NewExitError(CodeNoRemote, "cannot sync")))
	assert.Equal(t, "Error [E_NO_REMOTE]: cannot sync\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Fail(errors.New("boom")))
	assert.Equal(t, "Error [E_INTERNAL]: boom\n", buf.String())
}

func TestErrorCode_ExitCode(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeUnknownEntity, ExitFailure},
		{CodeValidation, ExitFailure},
		{CodeImport, ExitFailure},
		{CodeScenario, ExitFailure},
		{CodeRemote, ExitFailure},
		{CodeServe, ExitFailure},
		{CodeConfig, ExitCommandError},
		{CodeNoRemote, ExitCommandError},
		{CodeStorage, ExitCommandError},
		{CodeIO, ExitCommandError},
		{CodeInternal, ExitFailure},
		{"E_SOMETHING_NEW", ExitFailure},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.ExitCode())
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(CodeConfig, "bad config")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(CodeStorage, "open store", errors.New("disk")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, CodeStorage, ErrorCodeOf(wrapped))
	assert.Equal(t, "outer: open store: disk", wrapped.Error())
}
