package providers

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9.\-^=]{1,15}$`)

// Symbol returns the upper-cased ticker in params, validating its shape.
func Symbol(params Params) (string, error) {
	symbol := params.Get("symbol")
	if symbol == "" {
		return "", missingParam("symbol")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", &ValidationError{Field: "symbol", Message: "not a valid ticker symbol"}
	}
	return strings.ToUpper(symbol), nil
}

// Date returns the optional YYYY-MM-DD parameter name, or the zero time.
func Date(params Params, name string) (time.Time, error) {
	v := params.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, &ValidationError{Field: name, Message: "expected a YYYY-MM-DD date"}
	}
	return t, nil
}

// Year returns the optional four-digit year parameter name, or 0.
func Year(params Params, name string) (int, error) {
	v := params.Get(name)
	if v == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(v)
	if err != nil || y < 1800 || y > 9999 {
		return 0, &ValidationError{Field: name, Message: "expected a four-digit year"}
	}
	return y, nil
}

// Required returns the trimmed value of a required parameter.
func Required(params Params, name string) (string, error) {
	v := params.Get(name)
	if v == "" {
		return "", missingParam(name)
	}
	return v, nil
}
