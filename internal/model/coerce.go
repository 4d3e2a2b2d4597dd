package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Coerce converts a loosely typed input (decoded JSON, form values) into the
// value shape field f expects. Anything that cannot be represented becomes
// null; coercion never fails.
func Coerce(f Field, raw any) Value {
	switch f.Kind() {
	case KindNumber:
		return coerceNumber(raw)
	case KindText:
		return coerceText(raw)
	case KindCurve:
		return coerceCurve(raw)
	default:
		return Null()
	}
}

// CoerceNumber applies the numeric coercion rules outside of a field.
func CoerceNumber(raw any) Value { return coerceNumber(raw) }

func coerceNumber(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case Value:
		if f, ok := v.Float(); ok {
			return Number(f)
		}
		if s, ok := v.Str(); ok {
			return coerceNumber(s)
		}
		return Null()
	case float64:
		return Number(v)
	case float32:
		return Number(float64(v))
	case int:
		return Number(float64(v))
	case int64:
		return Number(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Null()
		}
		return Number(f)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return Null()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null()
		}
		return Number(f)
	default:
		return Null()
	}
}

func coerceText(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case Value:
		if v.IsNull() {
			return Null()
		}
		if _, ok := v.Table(); ok {
			return Null()
		}
		return Text(strings.TrimSpace(v.String()))
	case string:
		return Text(strings.TrimSpace(v))
	case float64:
		return Text(strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		return Text(strconv.Itoa(v))
	case json.Number:
		return Text(v.String())
	default:
		return Null()
	}
}

func coerceCurve(raw any) Value {
	switch v := raw.(type) {
	case Value:
		if t, ok := v.Table(); ok {
			return Curve(t)
		}
		return Null()
	case map[int]float64:
		return Curve(v)
	case map[string]any:
		out := make(map[int]float64, len(v))
		for k, x := range v {
			temp, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				continue
			}
			if f, ok := coerceNumber(x).Float(); ok {
				out[temp] = f
			}
		}
		return Curve(out)
	default:
		return Null()
	}
}
