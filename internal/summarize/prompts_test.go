package summarize_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/summarize"
)

func TestPromptSet_PartialContainsContractEssentials(t *testing.T) {
	p := summarize.NewPromptSet(summarize.ProfileDirect)
	prompt := p.Partial("[10:00] alice: hello")

	if !strings.HasSuffix(prompt, "[10:00] alice: hello") {
		t.Fatal("block text must close the partial prompt")
	}
	// The empty marker is load-bearing: the fusion stage distinguishes
	// "checked, found nothing" from "not checked" by its presence.
	if !strings.Contains(prompt, summarize.EmptyMarker) {
		t.Fatalf("partial contract must pin the literal empty marker %q", summarize.EmptyMarker)
	}
	for _, section := range []string{"Scenes:", "Facts:", "Purchases:", "Recommendations:", "Unconfirmed:", "Links:", "Plans:"} {
		if !strings.Contains(prompt, section) {
			t.Errorf("partial contract missing section %q", section)
		}
	}
	if !strings.Contains(prompt, "Never invent") {
		t.Error("partial contract must forbid fabrication")
	}
	if !strings.Contains(prompt, "literally appears") {
		t.Error("partial contract must restrict links to literal URLs")
	}
}

func TestPromptSet_FusionCapsAndMarker(t *testing.T) {
	p := summarize.NewPromptSet(summarize.ProfileDirect)
	prompt := p.Fusion([]string{"partial one", "partial two"})

	if !strings.Contains(prompt, summarize.EmptyMarker) {
		t.Fatalf("fusion contract must pin the literal empty marker %q", summarize.EmptyMarker)
	}
	if !strings.Contains(prompt, fmt.Sprintf("at most %d links", summarize.MaxLinks)) {
		t.Errorf("fusion contract must cap links at %d", summarize.MaxLinks)
	}
	if !strings.Contains(prompt, fmt.Sprintf("at most %d individual people", summarize.MaxNamedPeople)) {
		t.Errorf("fusion contract must cap named people at %d", summarize.MaxNamedPeople)
	}
	// Partials are joined in block order.
	if strings.Index(prompt, "partial one") > strings.Index(prompt, "partial two") {
		t.Error("partials must appear in block order")
	}
}

func TestPromptSet_ProfileSelectsCorroborationBar(t *testing.T) {
	direct := summarize.NewPromptSet(summarize.ProfileDirect).Fusion(nil)
	community := summarize.NewPromptSet(summarize.ProfileCommunity).Fusion(nil)

	if !strings.Contains(direct, "one clear, explicit recommendation is enough") {
		t.Error("direct profile must accept a single explicit recommendation")
	}
	if !strings.Contains(community, "at least two different messages") {
		t.Error("community profile must require independent corroboration")
	}
	if strings.Contains(direct, "at least two different messages") {
		t.Error("profiles must never blend")
	}
}

func TestPromptSet_LoadOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, summarize.PartialOverrideFile), []byte("custom partial contract\n"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	p := summarize.NewPromptSet(summarize.ProfileDirect)
	applied := p.LoadOverrides(dir)
	if len(applied) != 1 || applied[0] != summarize.PartialOverrideFile {
		t.Fatalf("expected only the partial override applied, got %v", applied)
	}

	if !strings.HasPrefix(p.Partial("block"), "custom partial contract") {
		t.Fatal("partial override not applied")
	}
	// Fusion keeps the built-in contract.
	if !strings.Contains(p.Fusion(nil), summarize.EmptyMarker) {
		t.Fatal("fusion contract must stay built-in when no override exists")
	}
}

func TestPromptSet_IgnoresEmptyOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, summarize.FusionOverrideFile), []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	p := summarize.NewPromptSet(summarize.ProfileDirect)
	if applied := p.LoadOverrides(dir); len(applied) != 0 {
		t.Fatalf("expected blank override ignored, got %v", applied)
	}
}
