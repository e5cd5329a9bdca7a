// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

// SetWriter replaces the sink of the process-wide logger.
func SetWriter(w io.Writer) {
	logger = zerolog.New(w).With().Timestamp().Logger()
}

func Info() *zerolog.Event {
	return logger.Info()
}

func Warn() *zerolog.Event {
	return logger.Warn()
}

func Error() *zerolog.Event {
	return logger.Error()
}

func Fatal() *zerolog.Event {
	return logger.Fatal()
}

// Avail returns a logger tagged for the availability-distribution core.
func Avail(tag string) zerolog.Logger {
	return logger.With().Str("module", "avail").Str("tag", tag).Logger()
}

// Network returns a logger tagged for the gossip transport.
func Network(tag string) zerolog.Logger {
	return logger.With().Str("module", "network").Str("tag", tag).Logger()
}

// Store returns a logger tagged for the availability store.
func Store() zerolog.Logger {
	return logger.With().Str("module", "store").Logger()
}

// API returns a logger tagged for the HTTP API.
func API() zerolog.Logger {
	return logger.With().Str("module", "api").Logger()
}

// Node returns a logger tagged for node assembly.
func Node() zerolog.Logger {
	return logger.With().Str("module", "node").Logger()
}
