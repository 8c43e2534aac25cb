// Package postproc rewrites transcription text through an ordered list of
// replacement rules. Rules run in their declared order and each rule sees
// the output of the previous one, so earlier entries can feed later ones.
package postproc

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"speakd/config"
	"speakd/log"
)

// Sources longer than this are almost certainly config mistakes (pasted
// sentences, stray JSON) and are rejected at load time.
const maxSourceRunes = 16

type rule struct {
	source  string
	replace string
	re      *regexp.Regexp
}

type Processor struct {
	rules           []rule
	caseInsensitive bool
}

// New compiles the replacement rules. Bad entries are skipped with a
// warning, never fatal: a broken replace_map degrades to fewer rules, not
// a dead pipeline.
func New(cfg config.PostprocessConfig) *Processor {
	p := &Processor{caseInsensitive: cfg.CaseInsensitive}
	seen := make(map[string]bool)

	for _, r := range cfg.Rules {
		source := strings.TrimSpace(r.From)
		if source == "" {
			log.Warnf("postproc: skipping rule with empty source")
			continue
		}
		if utf8.RuneCountInString(source) > maxSourceRunes {
			log.Warnf("postproc: skipping rule %q: source longer than %d runes", source, maxSourceRunes)
			continue
		}
		key := source
		if cfg.CaseInsensitive {
			key = strings.ToLower(source)
		}
		if seen[key] {
			log.Warnf("postproc: skipping duplicate rule %q", source)
			continue
		}
		seen[key] = true

		pattern := regexp.QuoteMeta(source)
		if cfg.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Warnf("postproc: skipping rule %q: %v", source, err)
			continue
		}
		p.rules = append(p.rules, rule{source: source, replace: strings.TrimSpace(r.To), re: re})
	}

	if len(p.rules) > 0 {
		log.Debugf("postproc: %d replacement rules active", len(p.rules))
	}
	return p
}

func (p *Processor) RuleCount() int { return len(p.rules) }

// Apply runs every rule over text, in order, and returns the rewritten
// text plus the number of substitutions made.
func (p *Processor) Apply(text string) (string, int) {
	corrections := 0
	for _, r := range p.rules {
		matches := len(r.re.FindAllStringIndex(text, -1))
		if matches == 0 {
			continue
		}
		text = r.re.ReplaceAllLiteralString(text, r.replace)
		corrections += matches
	}
	return text, corrections
}
