package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings and also
// recognizes the SMS input prompt ("> ").
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// 1. Match SMS Prompt
	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[0:len(Prompt)], nil
	}

	// 2. Match standard line ending with CRLF
	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	// Direct matches for final results
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg), line == UrcCall:
		return TypeURC
	default:
		return TypeData
	}
}

// Tokenize consumes complete lines from buf and returns them as trimmed
// tokens, stopping at the first terminal line. Blank lines are dropped.
// The terminal line itself is never emitted as a token; it is returned
// verbatim in final, with status StatusOK for "OK", StatusPrompt for the
// payload prompt, and StatusError for "ERROR" and the extended failure
// markers ("+CME ERROR:", "+CMS ERROR:", "NO CARRIER", ...).
//
// rest holds everything Tokenize did not consume: a trailing incomplete
// line, and any bytes following a terminal marker. Callers reading from
// a stream re-feed rest plus newly arrived bytes on the next call, so a
// token is never emitted twice and a marker split across two reads is
// recognized once it completes. status is StatusNone while no terminal
// line has been seen.
//
// Tokenize does not filter command echo. Echo is textually
// indistinguishable from response data at this layer; suppressing it
// requires knowing what was sent, which is the engine's job.
func Tokenize(buf []byte) (tokens []string, status Status, final string, rest []byte) {
	rest = buf
	for len(rest) > 0 {
		advance, line, _ := Splitter(rest, false)
		if advance == 0 {
			// Incomplete line. Leave it for the next call.
			break
		}
		rest = rest[advance:]

		tok := string(line)
		if tok != Prompt {
			tok = strings.TrimSpace(tok)
		}
		if tok == "" {
			continue
		}

		switch Classify(tok) {
		case TypePrompt:
			return tokens, StatusPrompt, tok, rest
		case TypeFinal:
			if tok == OK {
				return tokens, StatusOK, tok, rest
			}
			return tokens, StatusError, tok, rest
		}
		tokens = append(tokens, tok)
	}
	return tokens, StatusNone, "", rest
}
