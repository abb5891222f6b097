package logging

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	color "git.cdm.community/cdm/cdm/src/ansicolor"
	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	zerolog.ErrorStackMarshaler = oops.ZerologStackMarshaler
	log.Logger = log.Output(NewPrettyZerologWriter(os.Stderr))
	zerolog.SetGlobalLevel(config.Config.Level())
}

func GlobalLogger() *zerolog.Logger {
	return &log.Logger
}

func Trace() *zerolog.Event {
	return log.Trace().Timestamp().Stack()
}

func Debug() *zerolog.Event {
	return log.Debug().Timestamp().Stack()
}

func Info() *zerolog.Event {
	return log.Info().Timestamp().Stack()
}

func Warn() *zerolog.Event {
	return log.Warn().Timestamp().Stack()
}

func Error() *zerolog.Event {
	return log.Error().Timestamp().Stack()
}

func Fatal() *zerolog.Event {
	return log.Fatal().Timestamp().Stack()
}

func With() zerolog.Context {
	return log.With().Timestamp().Stack()
}

type loggerContextKey struct{}

func AttachLoggerToContext(logger *zerolog.Logger, ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// ExtractLogger returns the logger attached to ctx, or the global logger if
// nothing was attached.
func ExtractLogger(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(*zerolog.Logger); ok && logger != nil {
			return logger
		}
	}
	return GlobalLogger()
}

func LogPanics(logger *zerolog.Logger) {
	if r := recover(); r != nil {
		LogPanicValue(logger, r, "recovered from panic")
	}
}

func LogPanicValue(logger *zerolog.Logger, val interface{}, msg string) {
	if logger == nil {
		logger = GlobalLogger()
	}

	if err, ok := val.(error); ok {
		l := logger.Error().Err(err)
		if _, ok := err.(*oops.Error); !ok {
			l = l.Interface(zerolog.ErrorStackFieldName, oops.Trace())
		}
		l.Msg(msg)
	} else {
		logger.Error().
			Interface("recovered", val).
			Interface(zerolog.ErrorStackFieldName, oops.Trace()).
			Msg(msg)
	}
}

// PrettyZerologWriter turns zerolog's JSON lines back into something a human
// can read in a terminal. Entries with an error, a stack or extra fields are
// spread over several lines and fenced off from their neighbors.
type PrettyZerologWriter struct {
	out io.Writer
	wd  string

	mu                  sync.Mutex
	wasLastLogMultiline bool
}

type prettyEntry struct {
	Timestamp  string
	Level      string
	Message    string
	Error      string
	StackTrace []interface{}
	Fields     []prettyField
}

type prettyField struct {
	Name  string
	Value interface{}
}

func colorFromLevel(level string) string {
	switch level {
	case "trace", "debug":
		return color.Gray
	case "info":
		return color.BgBlue
	case "warn":
		return color.BgYellow
	}
	return color.BgRed
}

func NewPrettyZerologWriter(out io.Writer) *PrettyZerologWriter {
	wd, _ := os.Getwd()
	return &PrettyZerologWriter{
		out: out,
		wd:  wd,
	}
}

func (w *PrettyZerologWriter) Write(p []byte) (int, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(p, &raw); err != nil {
		return w.out.Write(p)
	}

	entry := parseEntry(raw)
	isMultiline := entry.Error != "" || entry.StackTrace != nil || entry.Fields != nil

	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder
	if isMultiline || w.wasLastLogMultiline {
		b.WriteString("---------------------------------------\n")
	}
	w.writeEntry(&b, entry)
	w.wasLastLogMultiline = isMultiline

	if _, err := io.WriteString(w.out, b.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func parseEntry(raw map[string]interface{}) prettyEntry {
	var entry prettyEntry
	for name, val := range raw {
		switch name {
		case zerolog.TimestampFieldName:
			entry.Timestamp, _ = val.(string)
		case zerolog.LevelFieldName:
			entry.Level, _ = val.(string)
		case zerolog.MessageFieldName:
			entry.Message, _ = val.(string)
		case zerolog.ErrorFieldName:
			entry.Error, _ = val.(string)
		case zerolog.ErrorStackFieldName:
			entry.StackTrace, _ = val.([]interface{})
		default:
			entry.Fields = append(entry.Fields, prettyField{Name: name, Value: val})
		}
	}
	sort.Slice(entry.Fields, func(i, j int) bool {
		return entry.Fields[i].Name < entry.Fields[j].Name
	})
	return entry
}

func (w *PrettyZerologWriter) writeEntry(b *strings.Builder, entry prettyEntry) {
	if entry.Timestamp != "" {
		b.WriteString(entry.Timestamp)
		b.WriteString(" ")
	}
	if entry.Level != "" {
		b.WriteString(colorFromLevel(entry.Level))
		b.WriteString(color.Bold)
		b.WriteString(strings.ToUpper(entry.Level))
		b.WriteString(color.Reset)
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)
	b.WriteString("\n")

	if entry.Error != "" {
		b.WriteString("  " + color.Bold + color.Red + "ERROR:" + color.Reset + " ")
		b.WriteString(entry.Error)
		b.WriteString("\n")
	}
	if len(entry.Fields) > 0 {
		b.WriteString("  " + color.Bold + color.Blue + "Fields:" + color.Reset + "\n")
		for _, field := range entry.Fields {
			value, _ := json.MarshalIndent(field.Value, "    ", "  ")
			b.WriteString("    " + field.Name + ": " + string(value) + "\n")
		}
	}
	if entry.StackTrace != nil {
		b.WriteString("  " + color.Bold + color.Blue + "Stack trace:" + color.Reset + "\n")
		for _, frame := range entry.StackTrace {
			frameMap, ok := frame.(map[string]interface{})
			if !ok {
				continue
			}
			file, _ := frameMap["file"].(string)
			function, _ := frameMap["function"].(string)
			line, _ := frameMap["line"].(float64)
			if w.wd != "" {
				file = strings.Replace(file, w.wd, ".", 1)
			}
			b.WriteString("    " + function + " (" + file + ":" + strconv.Itoa(int(line)) + ")\n")
		}
	}
}
