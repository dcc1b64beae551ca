package protocol

import (
	"errors"
	"unicode/utf8"
)

const (
	MaxTextBytes = 4096 // hard byte cap per chat line
	MaxTextChars = 2000 // max character count
)

var (
	ErrEmptyText   = errors.New("message text is empty")
	ErrTextTooLong = errors.New("message is too long")
	ErrInvalidUTF8 = errors.New("message contains invalid UTF-8")
)

// ValidateText checks that a chat line meets content requirements.
func ValidateText(text string) error {
	if len(text) == 0 {
		return ErrEmptyText
	}
	if len(text) > MaxTextBytes || utf8.RuneCountInString(text) > MaxTextChars {
		return ErrTextTooLong
	}
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}
	return nil
}
