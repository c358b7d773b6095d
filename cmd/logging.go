package cmd

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-course-purchases/config"
)

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Log.Level))
	if err != nil {
		return err
	}

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	logrus.AddHook(newServiceHook(cfg.App.ServiceName))

	return nil
}

type serviceHook struct {
	service string
}

func newServiceHook(service string) *serviceHook {
	return &serviceHook{service: service}
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}
