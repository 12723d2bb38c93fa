package survey

import (
	"encoding/json"
	"strconv"
)

// Aggregation tallies answers across submissions, per question.
// Results maps question key -> stringified answer -> count.
// Map iteration order is not stable; consumers sort for display.
type Aggregation struct {
	Results map[string]map[string]int `json:"results"`
	Total   int                       `json:"total"`
}

// Aggregate walks the submission payloads once and counts string and number
// answers per question key. Answers of any other JSON type are skipped;
// question keys absent from every payload never appear in the results.
func Aggregate(subs []SubmissionWithOwner) Aggregation {
	agg := Aggregation{
		Results: make(map[string]map[string]int),
		Total:   len(subs),
	}

	for _, sub := range subs {
		payload := decodePayload(sub.Data.JSON)
		for q, v := range payload {
			answer, ok := stringifyAnswer(v)
			if !ok {
				continue
			}
			tally, ok := agg.Results[q]
			if !ok {
				tally = make(map[string]int)
				agg.Results[q] = tally
			}
			tally[answer]++
		}
	}
	return agg
}

func decodePayload(data []byte) map[string]interface{} {
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return payload
}

// stringifyAnswer renders string and number answers; numbers use the
// shortest representation (4 -> "4", 4.5 -> "4.5").
func stringifyAnswer(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}
