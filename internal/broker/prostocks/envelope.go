package prostocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the normalized form of every broker reply. The vendor is
// inconsistent about shape: a single object, a bare array of rows, or an
// object nesting the rows under "data", "orders" or "values". Callers only
// ever see Stat/EMsg plus either Obj or List.
type envelope struct {
	Stat string
	EMsg string
	Obj  json.RawMessage   // single-object payload, nil for list replies
	List []json.RawMessage // row payload, nil for object replies
}

func (e *envelope) ok() bool {
	return e.Stat == "Ok"
}

// expired reports the vendor's session-invalidation signal. The wording is
// a vendor contract discovered empirically, not documented; see DESIGN.md
// before "hardening" this match.
func (e *envelope) expired() bool {
	return e.Stat == "Not_Ok" && strings.Contains(e.EMsg, "Session Expired")
}

// decodeObj unmarshals the single-object payload into v.
func (e *envelope) decodeObj(v any) error {
	if e.Obj == nil {
		return fmt.Errorf("%w: expected object payload", ErrMalformed)
	}
	if err := json.Unmarshal(e.Obj, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// normalize turns a raw reply body into an envelope. Every gateway and
// market-data call funnels through here so shape quirks stay in one place.
func normalize(body []byte) (*envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	if trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		env := &envelope{Stat: "Ok", List: rows}
		if len(rows) > 0 {
			// Row-level stat: a Not_Ok first row means the whole call failed.
			var head struct {
				Stat string `json:"stat"`
				EMsg string `json:"emsg"`
			}
			if err := json.Unmarshal(rows[0], &head); err == nil && head.Stat == "Not_Ok" {
				env.Stat = "Not_Ok"
				env.EMsg = head.EMsg
				env.List = nil
			}
		}
		return env, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	env := &envelope{Obj: trimmed}
	if raw, okk := obj["stat"]; okk {
		_ = json.Unmarshal(raw, &env.Stat)
	}
	if raw, okk := obj["emsg"]; okk {
		_ = json.Unmarshal(raw, &env.EMsg)
	}

	for _, key := range []string{"data", "orders", "values"} {
		raw, okk := obj[key]
		if !okk {
			continue
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err == nil {
			env.List = rows
			break
		}
	}

	if env.Stat == "" && env.List == nil {
		return nil, fmt.Errorf("%w: no stat field", ErrMalformed)
	}
	if env.Stat == "" {
		env.Stat = "Ok"
	}
	return env, nil
}
