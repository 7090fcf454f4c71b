// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package log

// API inspired by zerolog https://github.com/rs/zerolog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Level defines log level.
type Level uint8

// Logging constants, matching ffmpeg.
const (
	LevelError   Level = 16
	LevelWarning Level = 24
	LevelInfo    Level = 32
	LevelDebug   Level = 48
)

// ErrUnknownLevel unknown log level.
var ErrUnknownLevel = errors.New("unknown log level")

// ParseLevel parses "error", "warning", "info" or "debug".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownLevel, s)
}

// UnixMicro .
type UnixMicro uint64

// Event defines log event.
type Event struct {
	level  Level
	time   UnixMicro // Timestamp.
	src    string    // Source.
	stream string    // Source stream.

	logger *Logger
}

// Log defines log entry.
type Log struct {
	Level  Level
	Time   UnixMicro // Timestamp.
	Msg    string    // Message
	Src    string    // Source.
	Stream string    // Source stream.
}

// Src sets event source.
func (e *Event) Src(source string) *Event {
	e.src = source
	return e
}

// Stream sets event stream, usually the input file name.
func (e *Event) Stream(streamID string) *Event {
	e.stream = streamID
	return e
}

// Time sets event time.
func (e *Event) Time(t time.Time) *Event {
	e.time = UnixMicro(t.UnixMicro())
	return e
}

// Msg sends the *Event with msg added as the message field.
// The event is dropped if the logger has stopped.
func (e *Event) Msg(msg string) {
	log := Log{
		Time:   e.time,
		Level:  e.level,
		Msg:    msg,
		Src:    e.src,
		Stream: e.stream,
	}

	select {
	case e.logger.feed <- log:
	case <-e.logger.done:
	}
}

// Msgf sends the event with formatted msg added as the message field.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Msg(fmt.Sprintf(format, v...))
}

// Feed defines feed of logs.
type Feed <-chan Log
type logFeed chan Log

// Logger logs.
type Logger struct {
	feed  logFeed      // feed of logs.
	sub   chan logFeed // subscribe requests.
	unsub chan logFeed // unsubscribe requests.

	// Closed when Start returns.
	done chan struct{}
}

// NewLogger returns Logger, it must be started before use.
func NewLogger() *Logger {
	return &Logger{
		feed:  make(logFeed),
		sub:   make(chan logFeed),
		unsub: make(chan logFeed),
		done:  make(chan struct{}),
	}
}

// NewMockLogger returns a started logger without subscribers, used for testing.
func NewMockLogger() *Logger {
	l := NewLogger()
	go l.Start(context.Background())
	return l
}

// Start logger. A log is delivered to every subscriber before the
// next request is handled. Every feed is closed when ctx is canceled.
func (l *Logger) Start(ctx context.Context) {
	subs := map[logFeed]struct{}{}
	defer func() {
		for ch := range subs {
			close(ch)
		}
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ch := <-l.sub:
			subs[ch] = struct{}{}

		case ch := <-l.unsub:
			close(ch)
			delete(subs, ch)

		case msg := <-l.feed:
			for ch := range subs {
				ch <- msg
			}
		}
	}
}

// CancelFunc cancels log feed subsciption.
type CancelFunc func()

// Subscribe returns a new chan with log feed and a CancelFunc.
// The feed is closed when the logger stops.
func (l *Logger) Subscribe() (<-chan Log, CancelFunc) {
	feed := l.subscribe()
	cancel := func() {
		l.detach(feed, func(Log) {})
	}
	return feed, cancel
}

func (l *Logger) subscribe() logFeed {
	feed := make(logFeed)
	select {
	case l.sub <- feed:
	case <-l.done:
		close(feed)
	}
	return feed
}

// detach unsubscribes feed, logs received meanwhile are passed to fn.
func (l *Logger) detach(feed logFeed, fn func(Log)) {
	for {
		select {
		case l.unsub <- feed:
			return
		case log, ok := <-feed:
			if !ok {
				return
			}
			fn(log)
		}
	}
}

// consume passes every log to fn until ctx is canceled or the
// logger stops. Logs the logger has already accepted are not lost.
func (l *Logger) consume(ctx context.Context, fn func(Log)) {
	feed := l.subscribe()
	for {
		select {
		case log, ok := <-feed:
			if !ok {
				return
			}
			fn(log)
		case <-ctx.Done():
			l.detach(feed, fn)
			return
		}
	}
}

// LogToStdout prints log feed to Stdout.
func (l *Logger) LogToStdout(ctx context.Context, level Level) {
	l.LogToWriter(ctx, os.Stdout, level)
}

// LogToWriter prints logs at or below level to w.
func (l *Logger) LogToWriter(ctx context.Context, w io.Writer, level Level) {
	l.consume(ctx, func(log Log) {
		if log.Level <= level {
			fmt.Fprintln(w, FormatLog(log))
		}
	})
}

// FormatLog formats log as "[LEVEL] stream: Src: msg".
func FormatLog(log Log) string {
	var output string

	switch log.Level {
	case LevelError:
		output += "[ERROR] "
	case LevelWarning:
		output += "[WARNING] "
	case LevelInfo:
		output += "[INFO] "
	case LevelDebug:
		output += "[DEBUG] "
	}

	if log.Stream != "" {
		output += log.Stream + ": "
	}
	if log.Src != "" {
		output += strings.ToUpper(log.Src[:1]) + log.Src[1:] + ": "
	}

	output += log.Msg
	return output
}

func (l *Logger) newEvent(level Level) *Event {
	return &Event{
		level:  level,
		time:   UnixMicro(time.Now().UnixMicro()),
		logger: l,
	}
}

// Error starts a new message with error level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Error() *Event {
	return l.newEvent(LevelError)
}

// Warn starts a new message with warn level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Warn() *Event {
	return l.newEvent(LevelWarning)
}

// Info starts a new message with info level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Info() *Event {
	return l.newEvent(LevelInfo)
}

// Debug starts a new message with debug level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Debug() *Event {
	return l.newEvent(LevelDebug)
}
