package server

import (
	"encoding/json"
	"fmt"
	"strconv"

	"vellum/lib/value"

	"github.com/buger/jsonparser"
)

// parseParams converts the JSON parameters of a request. Integers become
// BIGINT, other numbers REAL and strings TEXT. A parameter of any other type
// is written as {"type": "DECIMAL(10,2)", "value": "1.50"}.
func parseParams(raw []json.RawMessage) ([]value.Value, error) {
	params := make([]value.Value, len(raw))
	for i, r := range raw {
		v, err := parseParam(r)
		if err != nil {
			return nil, fmt.Errorf("param $%d: %w", i+1, err)
		}
		params[i] = v
	}
	return params, nil
}

func parseParam(data []byte) (value.Value, error) {
	vdata, vtype, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, err
	}
	switch vtype {
	case jsonparser.Null:
		return value.Nil, nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(vdata)
		if err != nil {
			return nil, err
		}
		return value.Boolean(b), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(vdata)
		if err != nil {
			return nil, err
		}
		return value.Text(s), nil
	case jsonparser.Number:
		if n, err := strconv.ParseInt(string(vdata), 10, 64); err == nil {
			return value.BigInt(n), nil
		}
		f, err := jsonparser.ParseFloat(vdata)
		if err != nil {
			return nil, err
		}
		return value.Real(f), nil
	case jsonparser.Object:
		return parseTyped(vdata)
	}
	return nil, fmt.Errorf("unsupported parameter %s", string(vdata))
}

func parseTyped(obj []byte) (value.Value, error) {
	typ, err := jsonparser.GetString(obj, "type")
	if err != nil {
		return nil, fmt.Errorf("typed parameter without a type: %w", err)
	}
	dt, err := value.ParseDataType(typ)
	if err != nil {
		return nil, err
	}
	vdata, vtype, _, err := jsonparser.Get(obj, "value")
	if err != nil {
		return nil, fmt.Errorf("typed parameter without a value: %w", err)
	}
	return value.FromJson(vdata, vtype, dt)
}
