package catalogs

type PolicyType string

const (
	PolicyFiscal   PolicyType = "Fiscal"
	PolicyMonetary PolicyType = "Monetary"
	PolicyMixed    PolicyType = "Mixed"
	PolicyMeta     PolicyType = "Meta"
)

// Drawable reports whether cards of this type may be drawn into a hand.
func (t PolicyType) Drawable() bool {
	return t == PolicyFiscal || t == PolicyMonetary
}

type Stance string

const (
	StanceExpansionary   Stance = "expansionary"
	StanceContractionary Stance = "contractionary"
	StanceNeutral        Stance = "neutral"
)

// Lifetime says how long an effect stays in the ledger. It is either
// Persistent or Temporary; no other implementations exist.
type Lifetime interface {
	isLifetime()
}

// Persistent effects accumulate into the ledger's running totals and never expire.
type Persistent struct{}

// Temporary effects contribute to exactly Turns consecutive compositions.
type Temporary struct {
	Turns int
}

func (Persistent) isLifetime() {}
func (Temporary) isLifetime()  {}

func lifetimeOf(duration *int) Lifetime {
	if duration == nil {
		return Persistent{}
	}
	return Temporary{Turns: *duration}
}

type EffectSpec struct {
	Param string  `json:"param"`
	Delta float64 `json:"delta"`
}

type Card struct {
	Name        string
	Type        PolicyType
	Stance      Stance
	Effects     []EffectSpec
	Lifetime    Lifetime
	Generic     bool
	Description string
}

type cardDef struct {
	Name        string       `json:"name"`
	Type        PolicyType   `json:"type"`
	Stance      Stance       `json:"stance"`
	Effects     []EffectSpec `json:"effects"`
	Duration    *int         `json:"duration,omitempty"`
	Generic     bool         `json:"generic,omitempty"`
	Description string       `json:"description,omitempty"`
}

type Event struct {
	Name        string
	Category    string
	Character   string
	Probability float64
	Effects     []EffectSpec
	Lifetime    Lifetime
	Description string
}

type eventDef struct {
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Character   string       `json:"character,omitempty"`
	Probability float64      `json:"probability"`
	Effects     []EffectSpec `json:"effects"`
	Duration    *int         `json:"duration,omitempty"`
	Description string       `json:"description,omitempty"`
}

type BonusCriterion struct {
	Stance Stance     `json:"stance"`
	Type   PolicyType `json:"type"`
}

// BonusRule scales the effects of cards matching any criterion. The zero
// value matches nothing.
type BonusRule struct {
	Criteria   []BonusCriterion `json:"criteria"`
	Multiplier float64          `json:"multiplier"`
}

func (b BonusRule) Matches(c Card) bool {
	for _, cr := range b.Criteria {
		if cr.Stance == c.Stance && cr.Type == c.Type {
			return true
		}
	}
	return false
}

// Scale returns the delta a card actually contributes under this rule.
func (b BonusRule) Scale(c Card, delta float64) float64 {
	if b.Multiplier == 0 || !b.Matches(c) {
		return delta
	}
	return delta * b.Multiplier
}

type Objective struct {
	Key        string  `json:"key"`
	Label      string  `json:"label,omitempty"`
	Condition  string  `json:"condition"`
	Target     float64 `json:"target"`
	TargetType string  `json:"target_type,omitempty"`
}

type Character struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	StartingDeck []string    `json:"starting_deck"`
	Bonus        BonusRule   `json:"bonus"`
	Objectives   []Objective `json:"objectives,omitempty"`
}

type DilemmaOption struct {
	Name        string   `json:"name"`
	AddCards    []string `json:"add_cards,omitempty"`
	RemoveCards []string `json:"remove_cards,omitempty"`
}

type Dilemma struct {
	ID         string        `json:"id"`
	Character  string        `json:"character"`
	Title      string        `json:"title"`
	FlavorText string        `json:"flavor_text,omitempty"`
	OptionA    DilemmaOption `json:"option_a"`
	OptionB    DilemmaOption `json:"option_b"`
}

type ParameterDef struct {
	Name        string  `json:"name"`
	Default     float64 `json:"default"`
	Description string  `json:"description,omitempty"`
}
