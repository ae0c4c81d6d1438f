package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/fundgraph/llm"
	"github.com/brunobiangulo/fundgraph/llm/llmtest"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Climeworks", "CHE-215.350.964"},
		{"  Climeworks AG ", "CHE-215.350.964"},
		{"SwissDrones Operating AG", "CHE-236.101.881"},
		{"swiss", "CHE-236.101.881"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, uid)
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	for _, name := range []string{"Acme AG", "", "   "} {
		_, err := Lookup(name)
		assert.ErrorIs(t, err, ErrCompanyNotFound, name)
	}
}

func TestDirectoryExtraEntries(t *testing.T) {
	d := NewDirectory(map[string]string{"Acme AG": "CHE-100.200.300", "Climeworks Holding": "CHE-999.999.999"})

	uid, err := d.Lookup("acme")
	require.NoError(t, err)
	assert.Equal(t, "CHE-100.200.300", uid)

	// The longer key wins over the built-in "climeworks".
	uid, err = d.Lookup("Climeworks Holding AG")
	require.NoError(t, err)
	assert.Equal(t, "CHE-999.999.999", uid)
}

func TestDirFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CHE-215.350.964.pdf"), []byte("%PDF"), 0o644))
	f := DirFetcher{Dir: dir}

	path, err := f.Fetch(context.Background(), "CHE-215.350.964")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "CHE-215.350.964.pdf"), path)

	_, err = f.Fetch(context.Background(), "CHE-236.101.881")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func newTestService(t *testing.T, chat llm.Provider, text string) *Service {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CHE-215.350.964.pdf"), []byte("%PDF"), 0o644))
	s := NewService(nil, DirFetcher{Dir: dir}, chat, Config{Model: "m"})
	s.extract = func(context.Context, string) (string, error) { return text, nil }
	return s
}

func TestServiceReport(t *testing.T) {
	chat := llmtest.New("## Climeworks AG\nRegistered in Zürich.")
	s := newTestService(t, chat, "Climeworks AG, in Zürich, CHE-215.350.964, Aktiengesellschaft")

	rep, err := s.Report(context.Background(), "Climeworks")
	require.NoError(t, err)
	assert.Equal(t, "CHE-215.350.964", rep.UID)
	assert.Equal(t, "Climeworks", rep.Company)
	assert.Equal(t, len("Climeworks AG, in Zürich, CHE-215.350.964, Aktiengesellschaft"), rep.Characters)
	assert.True(t, strings.HasPrefix(rep.Summary, "## Climeworks AG"))

	reqs := chat.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 2, "summary runs on a fresh history")
	assert.Equal(t, llm.RoleSystem, reqs[0].Messages[0].Role)
	assert.Contains(t, reqs[0].Messages[1].Content, "UID CHE-215.350.964")
	assert.Contains(t, reqs[0].Messages[1].Content, "Aktiengesellschaft")
}

func TestServiceReportErrors(t *testing.T) {
	chat := llmtest.New()
	s := newTestService(t, chat, "text")

	_, err := s.Report(context.Background(), "Acme AG")
	assert.ErrorIs(t, err, ErrCompanyNotFound)

	_, err = s.Report(context.Background(), "SwissDrones")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Empty(t, chat.Requests())

	s.extract = func(context.Context, string) (string, error) { return "", errors.New("bad pdf") }
	_, err = s.Report(context.Background(), "Climeworks")
	assert.ErrorContains(t, err, "bad pdf")
}

func TestServiceReportLLMUnavailable(t *testing.T) {
	chat := &llmtest.Scripted{}
	chat.Push(llmtest.Reply{Err: llm.ErrUnavailable})
	s := newTestService(t, chat, "text")

	_, err := s.Report(context.Background(), "Climeworks")
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
	// Never split a multi-byte rune.
	assert.Equal(t, "Z...", preview("Zürich", 2))
}
