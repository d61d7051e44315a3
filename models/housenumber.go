// Package models defines the address data model shared by the scraper,
// the pipeline, and the query path.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TokenKind discriminates the token variants of a house-number key.
type TokenKind int

const (
	// TokenNumber is a maximal run of digits, stored as an integer.
	TokenNumber TokenKind = iota
	// TokenLetters is a maximal run of non-digits, stored upper-cased.
	TokenLetters
	// TokenOpenEnd is the sentinel produced by the literal "Ende". It
	// compares greater than every number and letter token.
	TokenOpenEnd
)

// Token is one element of a house-number key. Tokens of different kinds
// are comparable: numbers sort below letters, letters below the open-end
// sentinel, so "12" < "12a" < "Ende".
type Token struct {
	Kind    TokenKind
	Number  int
	Letters string
}

// NumberToken builds a digit-run token.
func NumberToken(n int) Token {
	return Token{Kind: TokenNumber, Number: n}
}

// LettersToken builds a letter-run token. The value is upper-cased.
func LettersToken(s string) Token {
	return Token{Kind: TokenLetters, Letters: strings.ToUpper(s)}
}

// OpenEndToken builds the sentinel token.
func OpenEndToken() Token {
	return Token{Kind: TokenOpenEnd}
}

// Compare orders two tokens. Within a kind, numbers compare numerically
// and letters lexicographically. Across kinds the order is
// number < letters < open end.
func (t Token) Compare(o Token) int {
	if t.Kind != o.Kind {
		if t.Kind < o.Kind {
			return -1
		}
		return 1
	}
	switch t.Kind {
	case TokenNumber:
		switch {
		case t.Number < o.Number:
			return -1
		case t.Number > o.Number:
			return 1
		}
		return 0
	case TokenLetters:
		return strings.Compare(t.Letters, o.Letters)
	default:
		return 0
	}
}

func (t Token) String() string {
	switch t.Kind {
	case TokenNumber:
		return strconv.Itoa(t.Number)
	case TokenLetters:
		return t.Letters
	default:
		return "Ende"
	}
}

// Key is the tokenized, totally ordered representation of a house
// number, e.g. "12a" -> [12 A] and "Ende" -> [open end].
type Key []Token

// InvalidHouseNumberError reports a house-number string that does not
// tokenize, such as an empty string.
type InvalidHouseNumberError struct {
	Raw string
}

func (e *InvalidHouseNumberError) Error() string {
	return fmt.Sprintf("invalid house number %q", e.Raw)
}

// ParseKey tokenizes a raw house-number string. The literal "Ende" in
// any case maps to the open-end sentinel. Otherwise all whitespace is
// removed and the remainder is split into maximal digit and non-digit
// runs, left to right.
func ParseKey(raw string) (Key, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "ende") {
		return Key{OpenEndToken()}, nil
	}

	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if stripped == "" {
		return nil, &InvalidHouseNumberError{Raw: raw}
	}

	var key Key
	runes := []rune(stripped)
	for i := 0; i < len(runes); {
		j := i
		digits := unicode.IsDigit(runes[i])
		for j < len(runes) && unicode.IsDigit(runes[j]) == digits {
			j++
		}
		run := string(runes[i:j])
		if digits {
			n, err := strconv.Atoi(run)
			if err != nil {
				return nil, &InvalidHouseNumberError{Raw: raw}
			}
			key = append(key, NumberToken(n))
		} else {
			key = append(key, LettersToken(run))
		}
		i = j
	}
	return key, nil
}

// Compare orders two keys lexicographically token by token. A key that
// is a strict prefix of another compares less.
func (k Key) Compare(o Key) int {
	for i := 0; i < len(k) && i < len(o); i++ {
		if c := k[i].Compare(o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(o):
		return -1
	case len(k) > len(o):
		return 1
	}
	return 0
}

// LeadingNumber returns the first token's integer value. ok is false
// for empty keys and keys that start with a letter run or the sentinel.
func (k Key) LeadingNumber() (int, bool) {
	if len(k) == 0 || k[0].Kind != TokenNumber {
		return 0, false
	}
	return k[0].Number, true
}

// Parity reports whether the leading integer is even. Keys without a
// leading integer have no parity.
func (k Key) Parity() (even bool, ok bool) {
	n, ok := k.LeadingNumber()
	if !ok {
		return false, false
	}
	return n%2 == 0, true
}

// IsOpenEnd reports whether the key is the open-end sentinel.
func (k Key) IsOpenEnd() bool {
	return len(k) == 1 && k[0].Kind == TokenOpenEnd
}

// String renders the key in its compact source form, e.g. [12 A]
// renders as "12A". ParseKey(k.String()) reproduces k.
func (k Key) String() string {
	var b strings.Builder
	for _, t := range k {
		b.WriteString(t.String())
	}
	return b.String()
}
