package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyEnvelope is returned when marshaling an envelope that holds nothing.
var ErrEmptyEnvelope = errors.New("envelope holds neither a result nor a failure")

// MarshalJSON writes whichever side of the envelope is set, so callers can
// branch on the presence of "error" alone.
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch {
	case e.Failure != nil:
		return json.Marshal(e.Failure)
	case e.Result != nil:
		return json.Marshal(e.Result)
	default:
		return nil, ErrEmptyEnvelope
	}
}

// UnmarshalJSON reads an envelope written by MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error *string `json:"error"`
	}

	err := json.Unmarshal(data, &probe)
	if err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	if probe.Error != nil {
		var failure ErrorResult

		err = json.Unmarshal(data, &failure)
		if err != nil {
			return fmt.Errorf("failed to unmarshal error result: %w", err)
		}

		e.Failure = &failure
		e.Result = nil

		return nil
	}

	var result SynthesisResult

	err = json.Unmarshal(data, &result)
	if err != nil {
		return fmt.Errorf("failed to unmarshal synthesis result: %w", err)
	}

	e.Result = &result
	e.Failure = nil

	return nil
}
