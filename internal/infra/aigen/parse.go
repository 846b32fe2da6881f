package aigen

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"

	"github.com/kaptinlin/jsonrepair"

	"github.com/questforge/questforge/internal/domain"
)

// arrayPattern matches from the first '[' to the last ']'.
var arrayPattern = regexp.MustCompile(`\[[\s\S]*\]`)

// ParseQuestArray extracts a JSON array of quest descriptors from model output.
// Prose around the array is ignored. Malformed JSON (trailing commas, single
// quotes, truncated objects) is repaired once before giving up.
// An empty array is an error.
func ParseQuestArray(text string) ([]domain.QuestTemplate, error) {
	match := arrayPattern.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("%w: no JSON array in response", domain.ErrGeneratorUnparsable)
	}

	var out []domain.QuestTemplate
	if err := json.Unmarshal([]byte(match), &out); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(match)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: repair: %v", domain.ErrGeneratorUnparsable, repairErr)
		}
		log.Printf("[aigen] repaired malformed quest JSON (%d → %d bytes)", len(match), len(repaired))
		out = nil
		if err := json.Unmarshal([]byte(repaired), &out); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGeneratorUnparsable, err)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty array", domain.ErrGeneratorUnparsable)
	}
	return out, nil
}
