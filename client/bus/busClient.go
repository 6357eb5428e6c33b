package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"roster/bizerror"
	"roster/misc"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Message is the envelope the event bus expects.
type Message struct {
	Topic      string          `json:"topic"`
	Originator string          `json:"originator"`
	Timestamp  types.Timestamp `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

var (
	PublishFunc = Publish

	// The bus API throttles aggressive producers; stay below its ceiling.
	limiter = rate.NewLimiter(rate.Limit(50), 100)
)

// ServiceURL BUS_API_URL. An empty value disables external publishing.
func ServiceURL() string {
	return strings.TrimSuffix(os.Getenv("BUS_API_URL"), "/")
}

// Publish posts one message to the external event bus.
func Publish(ctx context.Context, topic string, payload interface{}) error {
	url := ServiceURL()
	if url == "" {
		logrus.Debugf("bus api is not configured, message of topic %s dropped", topic)
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	message := Message{
		Topic:      topic,
		Originator: misc.GetServiceName(),
		Timestamp:  types.CurrentTimestamp(),
		Payload:    raw,
	}
	body, err := json.Marshal(&message)
	if err != nil {
		return err
	}

	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := misc.HttpInvokeJson(ctx, http.MethodPost, url+"/bus/events", nil, string(body)); err != nil {
		return &bizerror.ErrDependencyFailure{Service: "bus", Cause: err}
	}
	return nil
}
