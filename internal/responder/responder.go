// Package responder implements the automated keyword responder. It is a pure
// function over the inbound text: no state, no I/O, safe for concurrent use.
package responder

import (
	"math/rand"
	"strings"
)

// Entry binds a keyword to its canned answer. Entries are matched in
// declaration order and the first keyword found in the message wins.
type Entry struct {
	Keyword string
	Answer  string
}

// Config is the immutable data the responder is built from.
type Config struct {
	// Entries is the ordered keyword table.
	Entries []Entry

	// Triggers are the phrases that request a human hand-off.
	Triggers []string

	// Fallbacks are generic replies used when no keyword matches. One is
	// chosen pseudo-randomly per call.
	Fallbacks []string

	// TransferNote is appended to the reply when a trigger matched.
	TransferNote string

	// Intn supplies randomness for fallback selection. Injectable so tests
	// are deterministic. Defaults to math/rand.
	Intn func(n int) int
}

// Default returns the built-in door and window knowledge base.
func Default() Config {
	return Config{
		Entries: []Entry{
			{"price", "Our pricing depends on material, size and finish. Aluminum windows run 300-800 CNY per square meter and thermal-break aluminum 600-1200 CNY. A precise quote follows a free on-site measurement."},
			{"material", "We offer several materials: 1. aluminum - economical and corrosion resistant; 2. thermal-break aluminum - best insulation; 3. uPVC - well sealed at a moderate price; 4. solid wood - elegant and natural."},
			{"install", "We provide professional installation: 1. free on-site measurement; 2. certified crews; 3. work to national standards; 4. after-sales support. Installation usually takes 3-7 working days."},
			{"warranty", "Our after-sales service includes: 1. a 5-year product warranty; 2. free on-site repairs; 3. lifetime supply of spare parts; 4. a 24-hour service hotline."},
			{"measure", "We offer free on-site measurement: 1. a technician visits your home; 2. takes precise dimensions; 3. discusses options with you; 4. provides a detailed quote. To book, leave your contact details and address."},
			{"craft", "We use modern production techniques: precision CNC machining, multi-stage quality checks, environmentally friendly coating and strict assembly standards."},
		},
		Triggers: []string{
			"talk to a person",
			"speak to a human",
			"human agent",
			"customer service",
			"real person",
			"complaint",
			"not satisfied",
		},
		Fallbacks: []string{
			"Thanks for reaching out! I am the Baodeli doors and windows assistant. Ask me about pricing, materials, installation or warranty and I will be happy to help.",
			"Hello! I can tell you about our door and window products and services. If you need anything specific, or a human agent, just let me know.",
			"Welcome to Baodeli doors and windows! We manufacture all kinds of doors and windows. If you would like to talk to a person, just say so.",
		},
		TransferNote: "\n\nYou are being transferred to a human agent, please hold on. You can also leave your contact details and we will get back to you.",
	}
}

// Responder answers inbound messages from its keyword table.
type Responder struct {
	entries      []Entry
	triggers     []string
	fallbacks    []string
	transferNote string
	intn         func(n int) int
}

// New builds a responder from cfg. Zero-value fields fall back to Default().
func New(cfg Config) *Responder {
	def := Default()
	if cfg.Entries == nil {
		cfg.Entries = def.Entries
	}
	if cfg.Triggers == nil {
		cfg.Triggers = def.Triggers
	}
	if len(cfg.Fallbacks) == 0 {
		cfg.Fallbacks = def.Fallbacks
	}
	if cfg.TransferNote == "" {
		cfg.TransferNote = def.TransferNote
	}
	if cfg.Intn == nil {
		cfg.Intn = rand.Intn
	}
	return &Responder{
		entries:      cfg.Entries,
		triggers:     cfg.Triggers,
		fallbacks:    cfg.Fallbacks,
		transferNote: cfg.TransferNote,
		intn:         cfg.Intn,
	}
}

// Reply produces the canned answer for message and reports whether the
// message asked for a human. It never fails: any internal fault degrades to
// a generic fallback reply.
func (r *Responder) Reply(message string) (text string, needsHuman bool) {
	defer func() {
		if recover() != nil {
			text = r.fallbacks[0]
		}
	}()

	normalized := strings.ToLower(message)

	for _, e := range r.entries {
		if strings.Contains(normalized, e.Keyword) {
			text = e.Answer
			break
		}
	}
	if text == "" {
		text = r.fallbacks[r.intn(len(r.fallbacks))%len(r.fallbacks)]
	}

	if r.NeedsHuman(message) {
		needsHuman = true
		text += r.transferNote
	}
	return text, needsHuman
}

// NeedsHuman reports whether message contains a hand-off trigger phrase.
func (r *Responder) NeedsHuman(message string) bool {
	normalized := strings.ToLower(message)
	for _, t := range r.triggers {
		if strings.Contains(normalized, t) {
			return true
		}
	}
	return false
}
