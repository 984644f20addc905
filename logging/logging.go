package logging

import (
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/config"
)

// Setup configures the global logger. When dir is set, entries are also
// written to a daily rotated file in that directory.
func Setup(level, dir string) error {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	if dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	hook, err := fileHook(dir)
	if err != nil {
		return err
	}
	log.AddHook(hook)

	return nil
}

func fileHook(dir string) (log.Hook, error) {
	writer, err := rotatelogs.New(
		filepath.Join(dir, "cctvwall.log.%Y%m%d"),
		rotatelogs.WithLinkName(filepath.Join(dir, "cctvwall.log")),
		rotatelogs.WithMaxAge(config.LogRetention),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, err
	}

	pathMap := lfshook.WriterMap{
		log.DebugLevel: writer,
		log.InfoLevel:  writer,
		log.WarnLevel:  writer,
		log.ErrorLevel: writer,
		log.FatalLevel: writer,
		log.PanicLevel: writer,
	}

	return lfshook.NewHook(pathMap, &log.TextFormatter{FullTimestamp: true}), nil
}
