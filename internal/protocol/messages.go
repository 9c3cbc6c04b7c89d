package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type             string  `json:"type"`
	ProtocolVersion  string  `json:"protocol_version"`
	PlayerName       string  `json:"player_name,omitempty"`
	CharacterID      string  `json:"character_id"`
	Seed             *uint64 `json:"seed,omitempty"`
	ReplayLaterCards bool    `json:"replay_later_cards,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	GameID          string         `json:"game_id"`
	Seed            uint64         `json:"seed"`
	Character       CharacterView  `json:"character"`
	Rules           Rules          `json:"rules"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CharacterView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Bonus       BonusView       `json:"bonus"`
	Objectives  []ObjectiveView `json:"objectives,omitempty"`
}

type BonusView struct {
	Criteria   []string `json:"criteria"`
	Multiplier float64  `json:"multiplier"`
}

type Rules struct {
	EndYear         int `json:"end_year"`
	MaxCardsPerYear int `json:"max_cards_per_year"`
	DrawTarget      int `json:"draw_target"`
}

type CatalogDigests struct {
	Parameters string `json:"parameters"`
	Cards      string `json:"cards"`
	Events     string `json:"events"`
	Characters string `json:"characters"`
	Dilemmas   string `json:"dilemmas"`
	Combined   string `json:"combined"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ActID           string   `json:"act_id,omitempty"`
	Action          string   `json:"action"`
	Choice          string   `json:"choice,omitempty"`
	Cards           []string `json:"cards,omitempty"`
}

// STATE (server -> client), sent after every successful ACT.
type StateMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	ActID           string             `json:"act_id,omitempty"`
	GameID          string             `json:"game_id"`
	Phase           string             `json:"phase"`
	Year            int                `json:"year"`
	Hand            []CardView         `json:"hand"`
	Dilemma         *DilemmaView       `json:"dilemma,omitempty"`
	Outcome         *DilemmaOutcome    `json:"dilemma_outcome,omitempty"`
	SeenDilemmas    []string           `json:"seen_dilemmas,omitempty"`
	LastTurn        *TurnView          `json:"last_turn,omitempty"`
	Indicators      map[string]float64 `json:"indicators,omitempty"`
	Objectives      []ObjectiveView    `json:"objectives,omitempty"`
	ObjectivesMet   *bool              `json:"objectives_met,omitempty"`
	Error           string             `json:"error,omitempty"`
}

type CardView struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Stance      string `json:"stance"`
	Duration    int    `json:"duration,omitempty"`
	Boosted     bool   `json:"boosted,omitempty"`
	Description string `json:"description,omitempty"`
}

type DilemmaView struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	FlavorText string     `json:"flavor_text,omitempty"`
	OptionA    OptionView `json:"option_a"`
	OptionB    OptionView `json:"option_b"`
}

type OptionView struct {
	Name        string   `json:"name"`
	AddCards    []string `json:"add_cards,omitempty"`
	RemoveCards []string `json:"remove_cards,omitempty"`
}

type DilemmaOutcome struct {
	Added    string   `json:"added,omitempty"`
	Replaced string   `json:"replaced,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

type TurnView struct {
	Year   int      `json:"year"`
	Cards  []string `json:"cards"`
	Events []string `json:"events"`
	Digest string   `json:"digest"`
}

type ObjectiveView struct {
	Key       string   `json:"key"`
	Label     string   `json:"label,omitempty"`
	Condition string   `json:"condition"`
	Target    float64  `json:"target"`
	Actual    *float64 `json:"actual,omitempty"`
	Met       *bool    `json:"met,omitempty"`
}

// REPORT (server -> client)
type ReportMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	ActID           string             `json:"act_id,omitempty"`
	FinalYear       int                `json:"final_year"`
	Real            map[string]float64 `json:"real"`
	Impacts         []ImpactView       `json:"impacts"`
}

type ImpactView struct {
	ForkYear  int                `json:"fork_year"`
	Cards     []string           `json:"cards"`
	Available bool               `json:"available"`
	Diff      map[string]float64 `json:"diff,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActID           string `json:"act_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
