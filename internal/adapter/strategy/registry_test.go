package strategy

import "testing"

func TestRegistry_BuildKnownStrategies(t *testing.T) {
	for _, name := range []string{"round-robin", "random", "weighted", "least-used", "performance", "session", "geo", "intelligent-failover"} {
		s, err := Build(name)
		if err != nil {
			t.Fatalf("Build(%q): %v", name, err)
		}
		if s.Name() == "" {
			t.Fatalf("Build(%q) returned a strategy with an empty Name()", name)
		}
	}
}

func TestRegistry_BuildUnknownNameErrors(t *testing.T) {
	if _, err := Build("does-not-exist"); err == nil {
		t.Fatal("expected an error for an unregistered strategy name")
	}
}

func TestRegistry_RegisterOverridesExistingName(t *testing.T) {
	called := false
	if err := Register("round-robin", func() Strategy {
		called = true
		return NewRandomSelector()
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer Register("round-robin", func() Strategy { return NewRoundRobinSelector() })

	s, err := Build("round-robin")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !called {
		t.Fatal("expected the overriding constructor to run")
	}
	if s.Name() != "random" {
		t.Fatalf("expected the overridden constructor's strategy, got %q", s.Name())
	}
}

func TestRegistry_NamesListsEveryRegisteredStrategy(t *testing.T) {
	names := Names()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{"round-robin", "random", "weighted"} {
		if !seen[want] {
			t.Fatalf("expected %q in Names(), got %v", want, names)
		}
	}
}
