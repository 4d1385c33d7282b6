package stratumcore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var logger = newSimpleLogger()

type logLevel int32

const (
	logLevelDebug logLevel = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

func (l logLevel) String() string {
	switch l {
	case logLevelDebug:
		return "DEBUG"
	case logLevelInfo:
		return "INFO"
	case logLevelWarn:
		return "WARN"
	case logLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func parseLogLevel(name string) (logLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logLevelDebug, nil
	case "", "info":
		return logLevelInfo, nil
	case "warn", "warning":
		return logLevelWarn, nil
	case "error":
		return logLevelError, nil
	default:
		return logLevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

type logEvent struct {
	at    time.Time
	level logLevel
	msg   string
	attrs []any
}

// logOutputs routes entries by level: debug entries go only to debug, info
// and above go to pool, errors additionally go to errors.
type logOutputs struct {
	pool   io.Writer
	errors io.Writer
	debug  io.Writer
	stdout io.Writer
}

func (o logOutputs) forLevel(level logLevel) []io.Writer {
	out := make([]io.Writer, 0, 3)
	if o.stdout != nil {
		out = append(out, o.stdout)
	}
	if level == logLevelDebug {
		return append(out, o.debug)
	}
	out = append(out, o.pool)
	if level >= logLevelError {
		out = append(out, o.errors)
	}
	return out
}

func (o logOutputs) close() {
	for _, w := range []io.Writer{o.pool, o.errors, o.debug} {
		if f, ok := w.(*dailyRollingFileWriter); ok {
			_ = f.Close()
		}
	}
}

// simpleLogger hands entries to one writer goroutine so logging on the share
// path never blocks on disk.
type simpleLogger struct {
	level atomic.Int32
	queue chan logEvent
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	outMu sync.RWMutex
	out   logOutputs
}

func newSimpleLogger() *simpleLogger {
	l := &simpleLogger{
		queue: make(chan logEvent, 4096),
		done:  make(chan struct{}),
		out: logOutputs{
			pool:   os.Stdout,
			errors: io.Discard,
			debug:  io.Discard,
		},
	}
	l.level.Store(int32(logLevelWarn))
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *simpleLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case evt := <-l.queue:
			l.write(evt)
		case <-l.done:
			for {
				select {
				case evt := <-l.queue:
					l.write(evt)
				default:
					return
				}
			}
		}
	}
}

func (l *simpleLogger) log(level logLevel, msg string, attrs ...any) {
	if int32(level) < l.level.Load() {
		return
	}
	evt := logEvent{at: time.Now(), level: level, msg: msg, attrs: append([]any(nil), attrs...)}
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.queue <- evt:
	case <-l.done:
	}
}

func (l *simpleLogger) Debug(msg string, attrs ...any) { l.log(logLevelDebug, msg, attrs...) }
func (l *simpleLogger) Info(msg string, attrs ...any)  { l.log(logLevelInfo, msg, attrs...) }
func (l *simpleLogger) Warn(msg string, attrs ...any)  { l.log(logLevelWarn, msg, attrs...) }
func (l *simpleLogger) Error(msg string, attrs ...any) { l.log(logLevelError, msg, attrs...) }

func (l *simpleLogger) setLevel(level logLevel) {
	l.level.Store(int32(level))
}

// setOutputs swaps the destinations and closes the previous file writers.
func (l *simpleLogger) setOutputs(out logOutputs) {
	if out.pool == nil {
		out.pool = io.Discard
	}
	if out.errors == nil {
		out.errors = io.Discard
	}
	if out.debug == nil {
		out.debug = io.Discard
	}
	l.outMu.Lock()
	prev := l.out
	l.out = out
	l.outMu.Unlock()
	prev.close()
}

// Stop drains queued entries, then closes file outputs. Later calls to the
// log methods are dropped.
func (l *simpleLogger) Stop() {
	l.once.Do(func() {
		close(l.done)
		l.wg.Wait()
		l.setOutputs(logOutputs{})
	})
}

func (l *simpleLogger) write(evt logEvent) {
	line := appendLogEntry(make([]byte, 0, 128), evt)
	l.outMu.RLock()
	writers := l.out.forLevel(evt.level)
	l.outMu.RUnlock()
	for _, w := range writers {
		_, _ = w.Write(line)
	}
}

// appendLogEntry renders one line as
// "<RFC3339Nano UTC> [LEVEL] msg key=value ...". Values containing spaces,
// quotes or '=' are quoted.
func appendLogEntry(buf []byte, evt logEvent) []byte {
	buf = evt.at.UTC().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, " ["...)
	buf = append(buf, evt.level.String()...)
	buf = append(buf, "] "...)
	buf = append(buf, evt.msg...)
	for i := 0; i < len(evt.attrs); i += 2 {
		buf = append(buf, ' ')
		key := fmt.Sprint(evt.attrs[i])
		if i+1 >= len(evt.attrs) {
			buf = append(buf, key...)
			break
		}
		buf = append(buf, key...)
		buf = append(buf, '=')
		buf = appendLogValue(buf, evt.attrs[i+1])
	}
	return append(buf, '\n')
}

func appendLogValue(buf []byte, v any) []byte {
	var s string
	switch x := v.(type) {
	case error:
		s = x.Error()
	case time.Duration:
		s = x.String()
	default:
		s = fmt.Sprint(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

// dailyRollingFileWriter writes to "<name>-YYYY-MM-DD<ext>" next to the
// configured path and removes files older than retentionDays. Zero
// retention keeps every file.
type dailyRollingFileWriter struct {
	dir           string
	name          string
	ext           string
	retentionDays int
	now           func() time.Time

	mu   sync.Mutex
	f    *os.File
	date string
}

func newDailyRollingFileWriter(path string, retentionDays int) io.Writer {
	if path == "" {
		return io.Discard
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return &dailyRollingFileWriter{
		dir:           filepath.Dir(path),
		name:          strings.TrimSuffix(base, ext),
		ext:           ext,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

func (w *dailyRollingFileWriter) fileFor(date string) string {
	return filepath.Join(w.dir, w.name+"-"+date+w.ext)
}

func (w *dailyRollingFileWriter) rotate(now time.Time) error {
	date := now.UTC().Format(time.DateOnly)
	if w.f != nil && w.date == date {
		return nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.fileFor(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.date = date
	w.prune(now)
	return nil
}

func (w *dailyRollingFileWriter) prune(now time.Time) {
	if w.retentionDays <= 0 {
		return
	}
	matches, err := filepath.Glob(filepath.Join(w.dir, w.name+"-*"+w.ext))
	if err != nil {
		return
	}
	cutoff := now.UTC().AddDate(0, 0, -(w.retentionDays - 1)).Format(time.DateOnly)
	prefix := w.name + "-"
	for _, path := range matches {
		date := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), w.ext)
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			continue
		}
		// ISO dates order lexically.
		if date < cutoff {
			_ = os.Remove(path)
		}
	}
}

func (w *dailyRollingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotate(w.now()); err != nil {
		return 0, err
	}
	return w.f.Write(p)
}

func (w *dailyRollingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// SetLogLevel changes the package log level. Accepted names are debug, info,
// warn and error.
func SetLogLevel(name string) error {
	level, err := parseLogLevel(name)
	if err != nil {
		return err
	}
	logger.setLevel(level)
	return nil
}

// ConfigureLogging applies the [logging] section to the package logger.
// Empty paths discard that stream.
func ConfigureLogging(cfg LoggingConfig) error {
	if err := SetLogLevel(cfg.Level); err != nil {
		return err
	}
	out := logOutputs{
		pool:   newDailyRollingFileWriter(cfg.PoolLog, cfg.RetentionDays),
		errors: newDailyRollingFileWriter(cfg.ErrorLog, cfg.RetentionDays),
		debug:  newDailyRollingFileWriter(cfg.DebugLog, cfg.RetentionDays),
	}
	if cfg.Stdout {
		out.stdout = os.Stdout
	}
	logger.setOutputs(out)
	return nil
}

// StopLogging drains queued entries and closes log files.
func StopLogging() {
	logger.Stop()
}
