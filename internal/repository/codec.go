package repository

import (
	"encoding/json"

	"github.com/stemsi/exstem-assess/internal/model"
)

// encodeAnswer returns the JSONB form of a, or nil (SQL NULL) for no answer.
func encodeAnswer(a *model.Answer) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func decodeAnswer(raw []byte) (*model.Answer, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	a := &model.Answer{}
	if err := json.Unmarshal(raw, a); err != nil {
		return nil, err
	}
	return a, nil
}
