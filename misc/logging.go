package misc

import (
	"os"

	"github.com/sirupsen/logrus"
)

var serviceInstance string

func init() {
	logger := logrus.StandardLogger()
	logger.Out = os.Stdout
	logger.Formatter = &logrus.JSONFormatter{}
	logger.AddHook(&DefaultFieldsHook{})

	serviceInstance, _ = os.Hostname()
}

// GetServiceName SERVICE_NAME
func GetServiceName() string {
	name := os.Getenv("SERVICE_NAME")
	if name == "" {
		name = "roster"
	}
	return name
}

func GetServiceInstance() string {
	return serviceInstance
}

type DefaultFieldsHook struct {
}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["serviceName"] = GetServiceName()
	e.Data["serviceInstance"] = GetServiceInstance()
	return nil
}
