package research

import (
	"context"
	"sync"
)

type fakeGen struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (g *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", nil
	}
	i := len(g.prompts) - 1
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}

func (g *fakeGen) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *fakeGen) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type fakeSearch struct {
	mu      sync.Mutex
	result  string
	err     error
	queries []string
}

func (s *fakeSearch) Search(_ context.Context, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.result, s.err
}

func (s *fakeSearch) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type fixture struct {
	writer, validator, refiner *fakeGen
	web, academic              *fakeSearch
}

func newFixture() *fixture {
	return &fixture{
		writer:    &fakeGen{responses: []string{"# Report v1", "# Report v2", "# Report v3", "# Report v4"}},
		validator: &fakeGen{responses: []string{"PASS"}},
		refiner:   &fakeGen{responses: []string{`"solid state electrolytes"`, "  cathode degradation  "}},
		web:       &fakeSearch{result: "web hits"},
		academic:  &fakeSearch{result: "paper hits"},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Writer:    f.writer,
		Validator: f.validator,
		Refiner:   f.refiner,
		Web:       f.web,
		Academic:  f.academic,
	}
}
