package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Session setup.
	ErrUnknownCharacter = "E_UNKNOWN_CHARACTER"

	// Game rules.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrWrongPhase    = "E_WRONG_PHASE"
	ErrTooManyCards  = "E_TOO_MANY_CARDS"
	ErrCardNotInHand = "E_CARD_NOT_IN_HAND"
	ErrNoDilemma     = "E_NO_DILEMMA"
	ErrGameOver      = "E_GAME_OVER"

	// Simulation.
	ErrSimulationFailed = "E_SIMULATION_FAILED"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrUnknownCharacter: {},
	ErrBadRequest:       {},
	ErrWrongPhase:       {},
	ErrTooManyCards:     {},
	ErrCardNotInHand:    {},
	ErrNoDilemma:        {},
	ErrGameOver:         {},
	ErrSimulationFailed: {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
