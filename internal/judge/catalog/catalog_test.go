package catalog

import "testing"

func TestLanguageByID(t *testing.T) {
	lang, ok := LanguageByID(2)
	if !ok || lang.SourceFile != "main.cpp" || !lang.Compiled() {
		t.Fatalf("unexpected language: %+v", lang)
	}
	if _, ok := LanguageByID(99); ok {
		t.Fatalf("expected unknown language")
	}
}

func TestInterpretedLanguagesHaveNoCompileStep(t *testing.T) {
	for _, id := range []int{4, 5} {
		lang, _ := LanguageByID(id)
		if lang.Compiled() {
			t.Fatalf("language %d should be interpreted", id)
		}
	}
}

func TestAllLanguagesOrdered(t *testing.T) {
	all := AllLanguages()
	if len(all) != 5 {
		t.Fatalf("expected 5 languages, got %d", len(all))
	}
	for i, lang := range all {
		if lang.ID != i+1 {
			t.Fatalf("unexpected order at %d: %d", i, lang.ID)
		}
	}
}

func TestStatusLookups(t *testing.T) {
	if s := StatusByName("Wrong Answer"); s.ID != 4 {
		t.Fatalf("unexpected status %+v", s)
	}
	if s := StatusByName("nope"); s != InternalError {
		t.Fatalf("unknown names must map to internal error, got %+v", s)
	}
	if s, ok := StatusByID(14); !ok || s != ExecFormatError {
		t.Fatalf("unexpected status %+v", s)
	}
	if _, ok := StatusByID(0); ok {
		t.Fatalf("expected id 0 to be unknown")
	}
	if len(AllStatuses()) != 14 {
		t.Fatalf("expected 14 statuses")
	}
}

func TestTerminal(t *testing.T) {
	if InQueue.Terminal() || Processing.Terminal() {
		t.Fatalf("queue states must not be terminal")
	}
	for _, s := range AllStatuses()[2:] {
		if !s.Terminal() {
			t.Fatalf("status %d should be terminal", s.ID)
		}
	}
}
