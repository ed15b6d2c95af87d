// Package recovery coerces free-form model output into a types.MedicationList.
//
// Stages run strictest first and stop at the first JSON value found:
// the whole text, the first fenced code block, then a brace-delimited span.
// Whatever a stage yields is then checked against the medication schema.
package recovery

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"medlist/api/internal/ocr/types"
)

type Stage string

const (
	StageDirect Stage = "direct"
	StageFenced Stage = "fenced"
	StageBrace  Stage = "brace"
)

// Stages lists every stage in the order they are attempted.
var Stages = []Stage{StageDirect, StageFenced, StageBrace}

// Result is a validated list plus the stage that located it.
type Result struct {
	List  types.MedicationList
	Stage Stage
}

// Only the first fence is considered, even if several are present.
var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

var validate = validator.New()

// Recover runs the stage chain over raw and validates the outcome.
// It returns types.ErrExtraction when no stage finds JSON and a wrapped
// types.ErrSchemaValidation when the JSON is not a medication list.
func Recover(raw string) (Result, error) {
	doc, stage, ok := Locate(raw)
	if !ok {
		return Result{}, types.ErrExtraction
	}
	list, err := Validate(doc)
	if err != nil {
		return Result{}, err
	}
	return Result{List: list, Stage: stage}, nil
}

// Locate returns the first JSON value found by the stage chain, without schema checks.
func Locate(raw string) (json.RawMessage, Stage, bool) {
	if doc, ok := parseJSON(raw); ok {
		return doc, StageDirect, true
	}
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		if doc, ok := parseJSON(strings.TrimSpace(m[1])); ok {
			return doc, StageFenced, true
		}
	}
	if doc, ok := braceSpan(raw); ok {
		return doc, StageBrace, true
	}
	return nil, "", false
}

func parseJSON(s string) (json.RawMessage, bool) {
	b := bytes.TrimSpace([]byte(s))
	if len(b) == 0 || !json.Valid(b) {
		return nil, false
	}
	return json.RawMessage(b), true
}

// braceSpan scans balanced objects from every '{' in order. An object that
// carries a "medications" key is preferred over the first one that merely parses.
// Any first-'{' to last-'}' span that is valid JSON is also found by the scan
// starting at that first '{'.
func braceSpan(s string) (json.RawMessage, bool) {
	var first json.RawMessage
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end, ok := balancedEnd(s, i)
		if !ok {
			continue
		}
		doc, ok := parseJSON(s[i:end])
		if !ok {
			continue
		}
		if hasMedicationsKey(doc) {
			return doc, true
		}
		if first == nil {
			first = doc
		}
	}
	return first, first != nil
}

// balancedEnd returns the index just past the '}' closing the object at start.
// Braces inside JSON strings are ignored.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func hasMedicationsKey(doc json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(doc, &probe); err != nil {
		return false
	}
	_, ok := probe["medications"]
	return ok
}

// Validate decodes doc into a medication list and enforces the schema:
// an object with a "medications" array whose items all name a medication.
func Validate(doc json.RawMessage) (types.MedicationList, error) {
	var list types.MedicationList
	if err := json.Unmarshal(doc, &list); err != nil {
		return types.MedicationList{}, errors.Wrap(types.ErrSchemaValidation, err.Error())
	}
	if err := validate.Struct(list); err != nil {
		return types.MedicationList{}, errors.Wrap(types.ErrSchemaValidation, describe(err))
	}
	return list, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fe.Namespace() + " failed " + fe.Tag()
}
