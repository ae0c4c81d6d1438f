// Package registry looks up a startup's commercial register extract (SOGC)
// and summarises it with the LLM.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brunobiangulo/fundgraph/llm"
	"github.com/brunobiangulo/fundgraph/parser"
	"github.com/brunobiangulo/fundgraph/session"
)

var (
	// ErrCompanyNotFound is returned when no UID is known for a company.
	ErrCompanyNotFound = errors.New("fundgraph: company not found")
	// ErrDocumentNotFound is returned when no extract exists for a UID.
	ErrDocumentNotFound = errors.New("fundgraph: registry document not found")
)

// knownUIDs maps lower-case company keys to Swiss UIDs.
var knownUIDs = map[string]string{
	"swissdrones": "CHE-236.101.881",
	"climeworks":  "CHE-215.350.964",
}

// maxPromptChars bounds how much extract text goes into the summary prompt.
const maxPromptChars = 12000

// Directory resolves company names to UIDs.
type Directory struct {
	keys []string
	uids map[string]string
}

// NewDirectory returns a directory of the built-in entries plus extra, whose
// keys are matched case-insensitively.
func NewDirectory(extra map[string]string) *Directory {
	d := &Directory{uids: make(map[string]string, len(knownUIDs)+len(extra))}
	for k, v := range knownUIDs {
		d.uids[k] = v
	}
	for k, v := range extra {
		d.uids[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for k := range d.uids {
		d.keys = append(d.keys, k)
	}
	// Longest key first so that "climeworks ag" beats "climeworks".
	sort.Slice(d.keys, func(i, j int) bool {
		if len(d.keys[i]) != len(d.keys[j]) {
			return len(d.keys[i]) > len(d.keys[j])
		}
		return d.keys[i] < d.keys[j]
	})
	return d
}

// Lookup returns the UID of company. A key matches when either string
// contains the other.
func (d *Directory) Lookup(company string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(company))
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrCompanyNotFound)
	}
	for _, k := range d.keys {
		if strings.Contains(name, k) || strings.Contains(k, name) {
			return d.uids[k], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrCompanyNotFound, company)
}

// Lookup resolves company against the built-in entries only.
func Lookup(company string) (string, error) {
	return NewDirectory(nil).Lookup(company)
}

// Fetcher locates the extract document for a UID.
type Fetcher interface {
	Fetch(ctx context.Context, uid string) (path string, err error)
}

// DirFetcher serves extracts previously downloaded as <Dir>/<uid>.pdf.
type DirFetcher struct {
	Dir string
}

func (f DirFetcher) Fetch(ctx context.Context, uid string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(f.Dir, uid+".pdf")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return "", fmt.Errorf("checking %s: %w", path, err)
	}
	return path, nil
}

// Report is the registry summary for one company.
type Report struct {
	Company    string    `json:"company"`
	UID        string    `json:"uid"`
	Path       string    `json:"path"`
	Characters int       `json:"characters"`
	Summary    string    `json:"summary"`
	Preview    string    `json:"preview"`
	Usage      llm.Usage `json:"usage"`
}

// Config tunes the summary call.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Service produces registry reports.
type Service struct {
	dir     *Directory
	fetcher Fetcher
	chat    llm.Provider
	extract func(ctx context.Context, path string) (string, error)
	cfg     Config
}

// NewService wires a directory, a document source and the LLM.
func NewService(dir *Directory, fetcher Fetcher, chat llm.Provider, cfg Config) *Service {
	if dir == nil {
		dir = NewDirectory(nil)
	}
	return &Service{dir: dir, fetcher: fetcher, chat: chat, extract: parser.ExtractPDFText, cfg: cfg}
}

// Report looks up the company's UID, reads its extract and asks the LLM for
// a summary. The summary call uses its own history, separate from any
// analyst session.
func (s *Service) Report(ctx context.Context, company string) (*Report, error) {
	uid, err := s.dir.Lookup(company)
	if err != nil {
		return nil, err
	}
	path, err := s.fetcher.Fetch(ctx, uid)
	if err != nil {
		return nil, err
	}
	text, err := s.extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", path, err)
	}

	rep := &Report{Company: company, UID: uid, Path: path, Characters: len(text), Preview: preview(text, 5000)}

	h := session.NewHistory(llm.System(summarySystem))
	h.Append(llm.User(fmt.Sprintf(summaryPrompt, company, uid, len(text), preview(text, maxPromptChars))))
	start := time.Now()
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    h.Messages(),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarising registry extract: %w", err)
	}
	rep.Usage.Add(resp)
	rep.Summary = strings.TrimSpace(resp.Content)

	slog.Info("registry: report generated", "company", company, "uid", uid,
		"chars", rep.Characters, "elapsed", time.Since(start).Round(time.Millisecond))
	return rep, nil
}

// preview cuts text to n bytes on a rune boundary, marking the cut.
func preview(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "..."
}

const summarySystem = `You summarise Swiss commercial register extracts (SOGC) for venture analysts. Answer in English using Markdown.`

const summaryPrompt = `Summarise the official registry information for %s (UID %s).

Cover, where the extract states them:
- registration information and legal status
- company formation details and registered seat
- purpose of the company
- management and board members
- official legal notices and recent changes

Do not invent facts that are not in the extract. The full document contains %d characters.

EXTRACT:
%s`
