package catalog

import "sort"

// FlagsSlot marks where sanitized user words are spliced into a command template.
const FlagsSlot = "%s"

// Language describes how one language is staged, compiled and run.
// Compile and Run are argument vectors; a nil Compile means the language is interpreted.
type Language struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	SourceFile string   `json:"-"`
	Compile    []string `json:"-"`
	Run        []string `json:"-"`
}

// Compiled reports whether the language has a compile step.
func (l Language) Compiled() bool {
	return len(l.Compile) > 0
}

var languages = map[int]Language{
	1: {
		ID:         1,
		Name:       "C (GCC)",
		SourceFile: "main.c",
		Compile:    []string{"gcc", FlagsSlot, "main.c", "-o", "a.out"},
		Run:        []string{"./a.out"},
	},
	2: {
		ID:         2,
		Name:       "C++ (GCC)",
		SourceFile: "main.cpp",
		Compile:    []string{"g++", FlagsSlot, "main.cpp", "-o", "a.out"},
		Run:        []string{"./a.out"},
	},
	3: {
		ID:         3,
		Name:       "Java",
		SourceFile: "Main.java",
		Compile:    []string{"javac", FlagsSlot, "Main.java"},
		Run:        []string{"java", "Main"},
	},
	4: {
		ID:         4,
		Name:       "Python",
		SourceFile: "script.py",
		Run:        []string{"python3", "script.py"},
	},
	5: {
		ID:         5,
		Name:       "JavaScript (Node.js)",
		SourceFile: "script.js",
		Run:        []string{"node", "script.js"},
	},
}

// LanguageByID returns the language with id.
func LanguageByID(id int) (Language, bool) {
	lang, ok := languages[id]
	return lang, ok
}

// AllLanguages returns every language ordered by id.
func AllLanguages() []Language {
	out := make([]Language, 0, len(languages))
	for _, lang := range languages {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
