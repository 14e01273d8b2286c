package channel

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"

	"toolhost/internal/domain"
)

func init() { color.NoColor = true }

func TestCLI_REPL(t *testing.T) {
	h := &echoHandler{}
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Handler:   h,
		Catalogue: staticCatalogue{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		In:        strings.NewReader("\nlist files\n/tools\n/quit\nnever reached\n"),
		Out:       &out,
	})

	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{
		"answer: list files",
		`-> filesystem.list_dir {"path":"."}`,
		"filesystem (1)",
		"filesystem.list_dir - List a directory",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never reached") {
		t.Error("input after /quit was processed")
	}
	if !strings.HasPrefix(h.last.SessionID, "cli-") {
		t.Errorf("session = %q", h.last.SessionID)
	}
}

func TestCLI_EOFEndsSession(t *testing.T) {
	cli := NewCLI(CLIConfig{Handler: &echoHandler{}, In: strings.NewReader("hi"), Out: io.Discard})
	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestWriteResponse_ShowsToolErrors(t *testing.T) {
	var out bytes.Buffer
	WriteResponse(&out, domain.Response{
		FinalAnswer: "Tool error (InvalidArguments): path is required",
		ToolCallsExecuted: []domain.TraceEntry{{
			Provider: "filesystem",
			Tool:     "filesystem.read_file",
			Args:     map[string]any{},
			Result:   map[string]any{"error": domain.NewToolError(domain.KindInvalidArguments, "path is required")},
		}},
	})
	got := out.String()
	if !strings.Contains(got, "-> filesystem.read_file {}") || !strings.Contains(got, "path is required") {
		t.Errorf("output = %q", got)
	}
}

func TestFormatCatalogue_Empty(t *testing.T) {
	if got := formatCatalogue(nil); got != "No tools loaded." {
		t.Errorf("got %q", got)
	}
}
