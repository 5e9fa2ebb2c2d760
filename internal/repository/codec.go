package repository

import (
	"encoding/json"
	"strconv"

	"flashquest/internal/models"
)

// Slice and map fields are stored as JSON text columns so the schema
// stays identical across sqlite, postgres and mysql.

func encodeInt64s(values []int64) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeInt64s(data string) []int64 {
	if data == "" {
		return nil
	}
	var values []int64
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}

func encodeInts(values []int) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeInts(data string) []int {
	if data == "" {
		return nil
	}
	var values []int
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeStrings(data string) []string {
	if data == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}

// Answers are keyed by card id; JSON object keys must be strings
func encodeAnswers(answers map[int64]models.Outcome) string {
	if len(answers) == 0 {
		return "{}"
	}
	out := make(map[string]string, len(answers))
	for id, outcome := range answers {
		out[strconv.FormatInt(id, 10)] = string(outcome)
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func decodeAnswers(data string) map[int64]models.Outcome {
	answers := make(map[int64]models.Outcome)
	if data == "" {
		return answers
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return answers
	}
	for key, outcome := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		answers[id] = models.Outcome(outcome)
	}
	return answers
}
