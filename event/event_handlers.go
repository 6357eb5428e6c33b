package event

import (
	"github.com/sirupsen/logrus"
)

// EventHandler inspects a record and returns nil when the kind is not
// interesting to it.
type EventHandler func(e *EventRecord) *EventHandleResult

type EventHandleResult struct {
	Success           bool
	Message           string
	HandlerIdentifier string
}

// EventHandlers is the in-process pub/sub channel. Handlers are appended at
// bootstrap, before the first request is served.
var EventHandlers []EventHandler

var InvokeHandlersFunc = InvokeHandlers

func InvokeHandlers(record *EventRecord) []EventHandleResult {
	results := []EventHandleResult{}
	for _, handler := range EventHandlers {
		logrus.Debug("pre handle event ", record.Event)
		r := handler(record)

		if r == nil {
			continue
		}

		results = append(results, *r)

		if r.Success {
			logrus.Info("post handle event. ", r)
		} else {
			logrus.Error("post handler error. ", r)
		}
	}
	return results
}
