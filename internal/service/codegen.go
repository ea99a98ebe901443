package service

import (
	nanoid "github.com/jaevor/go-nanoid"
)

const (
	// ShortCodeAlphabet holds the 62 symbols short codes are drawn from.
	ShortCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ShortCodeLength   = 6
)

// CodeGenerator produces random short codes and bounds how many
// candidates Shorten may try before giving up.
type CodeGenerator struct {
	generate    func() string
	maxAttempts int
}

func NewCodeGenerator(maxAttempts int) (*CodeGenerator, error) {
	generate, err := nanoid.CustomASCII(ShortCodeAlphabet, ShortCodeLength)
	if err != nil {
		return nil, err
	}

	return newCodeGeneratorWith(generate, maxAttempts), nil
}

func newCodeGeneratorWith(generate func() string, maxAttempts int) *CodeGenerator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &CodeGenerator{
		generate:    generate,
		maxAttempts: maxAttempts,
	}
}

func (g *CodeGenerator) Generate() string {
	return g.generate()
}
