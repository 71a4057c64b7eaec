// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRealCommandExecutor(t *testing.T) {
	executor := NewRealCommandExecutor()
	ctx := context.Background()

	t.Run("output discarded", func(t *testing.T) {
		if err := executor.Execute(ctx, CommandOptions{}, "true"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	})

	t.Run("output streamed", func(t *testing.T) {
		var buf bytes.Buffer
		if err := executor.Execute(ctx, CommandOptions{Output: &buf}, "echo", "streaming test"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if got := strings.TrimSpace(buf.String()); got != "streaming test" {
			t.Errorf("Expected 'streaming test', got %q", got)
		}
	})

	t.Run("input piped through", func(t *testing.T) {
		var buf bytes.Buffer
		err := executor.Execute(ctx, CommandOptions{
			Input:  strings.NewReader("piped input"),
			Output: &buf,
		}, "cat")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if got := strings.TrimSpace(buf.String()); got != "piped input" {
			t.Errorf("Expected 'piped input', got %q", got)
		}
	})

	t.Run("failure reported", func(t *testing.T) {
		if err := executor.Execute(ctx, CommandOptions{}, "false"); err == nil {
			t.Error("Expected error from failing command")
		}
	})
}

func TestMockCommandExecutorRecording(t *testing.T) {
	mock := NewMockCommandExecutor()

	var buf bytes.Buffer
	if err := mock.Execute(context.Background(), CommandOptions{Output: &buf}, "echo", "hello"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "mock output for: echo hello") {
		t.Errorf("Unexpected output: %s", buf.String())
	}

	input := strings.NewReader("test input")
	if err := mock.Execute(context.Background(), CommandOptions{Input: input}, "cat"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	commands := mock.GetCommands()
	if len(commands) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(commands))
	}
	if commands[0].Name != "echo" || len(commands[0].Args) != 1 || commands[0].Args[0] != "hello" {
		t.Errorf("First command not recorded correctly: %+v", commands[0])
	}
	if commands[1].Name != "cat" || commands[1].Input != "test input" {
		t.Errorf("Second command not recorded correctly: %+v", commands[1])
	}

	mock.Reset()
	if len(mock.GetCommands()) != 0 {
		t.Error("Reset did not clear recorded commands")
	}
}
