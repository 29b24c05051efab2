package info

import "errors"

var errInvalidSelectResponse = errors.New("info: malformed SELECT response")

var errInvalidStatusResponse = errors.New("info: malformed GET STATUS response")
