package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

type upperCasePlugin struct{ Base }

func (upperCasePlugin) PreProcess(_ context.Context, text string) (string, error) {
	return "[" + text + "]", nil
}

type failingPlugin struct{ Base }

func (failingPlugin) PreProcess(_ context.Context, _ string) (string, error) {
	return "", errors.New("boom")
}

type shortCircuitPlugin struct{ Base }

func (shortCircuitPlugin) ShortCircuit(_ context.Context, text string) (ShortCircuitResult, error) {
	if text == "trigger" {
		return ShortCircuitResult{Triggered: true, Result: Result{RedactedText: "cached-answer"}}, nil
	}
	return ShortCircuitResult{}, nil
}

type dropFirstSpanPlugin struct{ Base }

func (dropFirstSpanPlugin) PreRedaction(_ context.Context, spans []SpanLike) ([]SpanLike, error) {
	if len(spans) == 0 {
		return spans, nil
	}
	return spans[1:], nil
}

func TestManager_RunPreProcess_AppliesEveryPluginInOrder(t *testing.T) {
	m := NewManager(upperCasePlugin{}, upperCasePlugin{})
	out := m.RunPreProcess(context.Background(), "hi")
	if out != "[[hi]]" {
		t.Errorf("expected nested brackets from two plugins in order, got %q", out)
	}
}

func TestManager_RunPreProcess_RecordsFailureAndContinues(t *testing.T) {
	m := NewManager(failingPlugin{Base{PluginName: "f"}}, upperCasePlugin{})
	out := m.RunPreProcess(context.Background(), "hi")
	if out != "[hi]" {
		t.Errorf("expected the failing plugin to be skipped, got %q", out)
	}
	failures := m.Failures()
	if len(failures) != 1 || failures[0].Plugin != "f" || failures[0].Hook != "preProcess" {
		t.Errorf("expected one recorded failure for plugin f, got %+v", failures)
	}
}

func TestManager_RunShortCircuit_FirstTriggerWins(t *testing.T) {
	m := NewManager(shortCircuitPlugin{}, shortCircuitPlugin{})
	res, ok := m.RunShortCircuit(context.Background(), "trigger")
	if !ok || res.Result.RedactedText != "cached-answer" {
		t.Errorf("expected a short-circuit trigger, got %+v, %v", res, ok)
	}
}

func TestManager_RunShortCircuit_NoTrigger(t *testing.T) {
	m := NewManager(shortCircuitPlugin{})
	_, ok := m.RunShortCircuit(context.Background(), "normal text")
	if ok {
		t.Error("expected no short-circuit for non-triggering text")
	}
}

func TestManager_RunPreRedaction_PluginCanDropASpan(t *testing.T) {
	m := NewManager(dropFirstSpanPlugin{})
	spans := []*span.Span{
		{FilterType: span.TypeName, Text: "first"},
		{FilterType: span.TypeEmail, Text: "second"},
	}
	out := m.RunPreRedaction(context.Background(), spans)
	if len(out) != 1 || out[0].Text != "second" {
		t.Errorf("expected only the second span to survive, got %+v", out)
	}
}

func TestManager_Reset_ClearsFailures(t *testing.T) {
	m := NewManager(failingPlugin{Base{PluginName: "f"}})
	m.RunPreProcess(context.Background(), "x")
	if len(m.Failures()) == 0 {
		t.Fatal("expected a recorded failure before Reset")
	}
	m.Reset()
	if len(m.Failures()) != 0 {
		t.Error("expected Failures() to be empty after Reset")
	}
}

func TestBase_DefaultsAreNoops(t *testing.T) {
	b := Base{PluginName: "noop"}
	if b.Name() != "noop" {
		t.Errorf("Name: got %q", b.Name())
	}
	text, err := b.PreProcess(context.Background(), "unchanged")
	if err != nil || text != "unchanged" {
		t.Errorf("expected PreProcess passthrough, got %q, %v", text, err)
	}
	result, err := b.PostRedaction(context.Background(), Result{RedactedText: "x"})
	if err != nil || result.RedactedText != "x" {
		t.Errorf("expected PostRedaction passthrough, got %+v, %v", result, err)
	}
}
