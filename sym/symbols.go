// Package sym defines the glyphs used to mark pipeline stages in logs and CLI output.
// These symbols are stable across CLI, server and log output.
package sym

// Stage symbols.
const (
	Source     = "⟶" // source contact, query execution
	Validation = "⊨" // constraint validation
	Join       = "⋈" // XJoin operator
	Post       = "▣" // post-processing, row reconstruction
	Config     = "≡" // configuration
)

// Runner infrastructure symbols.
const (
	Pulse      = "꩜" // runners, channels, statistics
	PulseOpen  = "✿" // runner start
	PulseClose = "❀" // runner stop
)

// entry binds a stage name to its glyph.
type entry struct {
	name  string
	glyph string
	label string
}

// registry is the canonical mapping between stage names and glyphs.
var registry = []entry{
	{"source", Source, "Source contact"},
	{"validation", Validation, "Validation"},
	{"xjoin", Join, "XJoin"},
	{"post_processing", Post, "Post-processing"},
	{"config", Config, "Configuration"},
	{"pulse", Pulse, "Runner"},
}

var byName map[string]entry

func init() {
	byName = make(map[string]entry, len(registry))
	for _, e := range registry {
		byName[e.name] = e
	}
}

// ForStage returns the glyph for a stage name, or Pulse when the stage is unknown.
func ForStage(name string) string {
	if e, ok := byName[name]; ok {
		return e.glyph
	}
	return Pulse
}

// Label returns the human-readable label for a stage name.
func Label(name string) string {
	if e, ok := byName[name]; ok {
		return e.label
	}
	return name
}
