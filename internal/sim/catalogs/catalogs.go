package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Parameters ParameterCatalog
	Cards      CardCatalog
	Events     EventCatalog
	Characters CharacterCatalog
	Dilemmas   DilemmaCatalog
}

type ParameterCatalog struct {
	Names  []string
	Defs   map[string]ParameterDef
	Digest string
}

type CardCatalog struct {
	Names   []string
	ByName  map[string]Card
	generic map[BonusCriterion]string
	Digest  string
}

type EventCatalog struct {
	Names           []string
	ByName          map[string]Event
	ExclusiveGroups [][]string
	Digest          string
}

type CharacterCatalog struct {
	IDs    []string
	ByID   map[string]Character
	Digest string
}

type DilemmaCatalog struct {
	ByID        map[string]Dilemma
	ByCharacter map[string][]string
	Digest      string
}

// Load reads and validates every catalog under configDir. Cross references
// (effect parameters, deck cards, dilemma cards) are checked here so that the
// simulation never sees an unknown parameter name from catalog content.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadParameters(filepath.Join(configDir, "parameters.json"), &c.Parameters); err != nil {
		return nil, err
	}
	if err := loadCards(filepath.Join(configDir, "cards.json"), c.Parameters, &c.Cards); err != nil {
		return nil, err
	}
	if err := loadEvents(filepath.Join(configDir, "events.json"), c.Parameters, &c.Events); err != nil {
		return nil, err
	}
	if err := loadCharacters(filepath.Join(configDir, "characters.json"), c.Cards, &c.Characters); err != nil {
		return nil, err
	}
	if err := loadDilemmas(filepath.Join(configDir, "dilemmas.json"), c.Cards, c.Characters, &c.Dilemmas); err != nil {
		return nil, err
	}
	for _, name := range c.Events.Names {
		ev := c.Events.ByName[name]
		if ev.Character != "" {
			if _, ok := c.Characters.ByID[ev.Character]; !ok {
				return nil, fmt.Errorf("events.json: event %q: unknown character %q", name, ev.Character)
			}
		}
	}
	return &c, nil
}

func (c *Catalogs) Card(name string) (Card, bool) {
	card, ok := c.Cards.ByName[name]
	return card, ok
}

func (c *Catalogs) Event(name string) (Event, bool) {
	ev, ok := c.Events.ByName[name]
	return ev, ok
}

func (c *Catalogs) HasParameter(name string) bool {
	_, ok := c.Parameters.Defs[name]
	return ok
}

func (c *Catalogs) Character(id string) (Character, bool) {
	ch, ok := c.Characters.ByID[id]
	return ch, ok
}

// GenericFor returns the generic equivalent card for a (stance, type) pair.
func (c *Catalogs) GenericFor(stance Stance, typ PolicyType) (string, bool) {
	name, ok := c.Cards.generic[BonusCriterion{Stance: stance, Type: typ}]
	return name, ok
}

// Drawable reports whether the named card qualifies for the hand.
func (c *Catalogs) Drawable(name string) bool {
	card, ok := c.Cards.ByName[name]
	return ok && card.Type.Drawable()
}

// DilemmasFor returns the character's dilemmas in id order.
func (c *Catalogs) DilemmasFor(characterID string) []Dilemma {
	ids := c.Dilemmas.ByCharacter[characterID]
	out := make([]Dilemma, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.Dilemmas.ByID[id])
	}
	return out
}

// Baseline returns a fresh copy of every parameter's default value.
func (p ParameterCatalog) Baseline() map[string]float64 {
	out := make(map[string]float64, len(p.Defs))
	for name, d := range p.Defs {
		out[name] = d.Default
	}
	return out
}

// Digest summarizes every catalog file; two sessions with the same digest
// load identical content.
func (c *Catalogs) Digest() string {
	b, _ := json.Marshal([]string{
		c.Parameters.Digest,
		c.Cards.Digest,
		c.Events.Digest,
		c.Characters.Digest,
		c.Dilemmas.Digest,
	})
	return sha256Hex(b)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func readValidated(path, schema string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateRaw(schema, raw); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return raw, nil
}

func loadParameters(path string, out *ParameterCatalog) error {
	raw, err := readValidated(path, "parameters")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ParameterDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("parameters.json: %w", err)
	}
	out.Defs = map[string]ParameterDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.Name]; dup {
			return fmt.Errorf("parameters.json: duplicate parameter %q", d.Name)
		}
		out.Defs[d.Name] = d
	}
	out.Names = sortedKeys(out.Defs)
	return nil
}

func checkEffects(file, owner string, effects []EffectSpec, params ParameterCatalog) error {
	for _, e := range effects {
		if _, ok := params.Defs[e.Param]; !ok {
			return fmt.Errorf("%s: %q: unknown parameter %q", file, owner, e.Param)
		}
	}
	return nil
}

func loadCards(path string, params ParameterCatalog, out *CardCatalog) error {
	raw, err := readValidated(path, "cards")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []cardDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("cards.json: %w", err)
	}
	out.ByName = map[string]Card{}
	out.generic = map[BonusCriterion]string{}
	for _, d := range defs {
		if _, dup := out.ByName[d.Name]; dup {
			return fmt.Errorf("cards.json: duplicate card %q", d.Name)
		}
		if err := checkEffects("cards.json", d.Name, d.Effects, params); err != nil {
			return err
		}
		if d.Generic {
			key := BonusCriterion{Stance: d.Stance, Type: d.Type}
			if prev, ok := out.generic[key]; ok {
				return fmt.Errorf("cards.json: %q and %q are both generic for %s/%s", prev, d.Name, d.Stance, d.Type)
			}
			out.generic[key] = d.Name
		}
		out.ByName[d.Name] = Card{
			Name:        d.Name,
			Type:        d.Type,
			Stance:      d.Stance,
			Effects:     d.Effects,
			Lifetime:    lifetimeOf(d.Duration),
			Generic:     d.Generic,
			Description: d.Description,
		}
	}
	out.Names = sortedKeys(out.ByName)
	return nil
}

func loadEvents(path string, params ParameterCatalog, out *EventCatalog) error {
	raw, err := readValidated(path, "events")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var file struct {
		Events          []eventDef `json:"events"`
		ExclusiveGroups [][]string `json:"exclusive_groups"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("events.json: %w", err)
	}
	out.ByName = map[string]Event{}
	for _, d := range file.Events {
		if _, dup := out.ByName[d.Name]; dup {
			return fmt.Errorf("events.json: duplicate event %q", d.Name)
		}
		if err := checkEffects("events.json", d.Name, d.Effects, params); err != nil {
			return err
		}
		out.ByName[d.Name] = Event{
			Name:        d.Name,
			Category:    d.Category,
			Character:   d.Character,
			Probability: d.Probability,
			Effects:     d.Effects,
			Lifetime:    lifetimeOf(d.Duration),
			Description: d.Description,
		}
	}
	for _, g := range file.ExclusiveGroups {
		for _, name := range g {
			if _, ok := out.ByName[name]; !ok {
				return fmt.Errorf("events.json: exclusive group references unknown event %q", name)
			}
		}
	}
	out.ExclusiveGroups = file.ExclusiveGroups
	out.Names = sortedKeys(out.ByName)
	return nil
}

func loadCharacters(path string, cards CardCatalog, out *CharacterCatalog) error {
	raw, err := readValidated(path, "characters")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []Character
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("characters.json: %w", err)
	}
	out.ByID = map[string]Character{}
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("characters.json: duplicate character %q", d.ID)
		}
		for _, name := range d.StartingDeck {
			if _, ok := cards.ByName[name]; !ok {
				return fmt.Errorf("characters.json: %q: unknown card %q in starting deck", d.ID, name)
			}
		}
		out.ByID[d.ID] = d
	}
	out.IDs = sortedKeys(out.ByID)
	return nil
}

func loadDilemmas(path string, cards CardCatalog, chars CharacterCatalog, out *DilemmaCatalog) error {
	raw, err := readValidated(path, "dilemmas")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []Dilemma
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("dilemmas.json: %w", err)
	}
	out.ByID = map[string]Dilemma{}
	out.ByCharacter = map[string][]string{}
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("dilemmas.json: duplicate dilemma %q", d.ID)
		}
		if _, ok := chars.ByID[d.Character]; !ok {
			return fmt.Errorf("dilemmas.json: %q: unknown character %q", d.ID, d.Character)
		}
		for _, opt := range []DilemmaOption{d.OptionA, d.OptionB} {
			for _, name := range opt.AddCards {
				if _, ok := cards.ByName[name]; !ok {
					return fmt.Errorf("dilemmas.json: %q: unknown card %q", d.ID, name)
				}
			}
		}
		out.ByID[d.ID] = d
		out.ByCharacter[d.Character] = append(out.ByCharacter[d.Character], d.ID)
	}
	for _, ids := range out.ByCharacter {
		sort.Strings(ids)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
