// Command simulator publishes a fleet of fake devices to an MQTT broker.
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"edge-logger/internal/broker"
)

type options struct {
	host      string
	port      int
	user      string
	password  string
	count     int
	interval  time.Duration
	topicBase string
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var o options
	flag.StringVar(&o.host, "host", "127.0.0.1", "broker host")
	flag.IntVar(&o.port, "port", 1883, "broker port")
	flag.StringVar(&o.user, "user", "", "broker username")
	flag.StringVar(&o.password, "password", "", "broker password")
	flag.IntVar(&o.count, "count", 60, "number of simulated devices")
	flag.DurationVar(&o.interval, "interval", time.Second, "publish interval")
	flag.StringVar(&o.topicBase, "topic-base", "v1", "topic prefix")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, log); err != nil {
		log.Fatal().Err(err).Msg("simulator")
	}
}

func deviceIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("esp-%02d", i+1)
	}
	return ids
}

// reading returns a uniformly random value in [lo, hi) rounded to two decimals.
func reading(lo, hi float64) string {
	v := lo + rand.Float64()*(hi-lo)
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func run(ctx context.Context, o options, log zerolog.Logger) error {
	client := broker.New(broker.Options{
		Host:      o.host,
		Port:      o.port,
		Username:  o.user,
		Password:  o.password,
		ClientID:  "simulator-" + uuid.NewString()[:8],
		KeepAlive: 60 * time.Second,
		QoS:       1,
		Filters:   []string{o.topicBase + "/time/response/+"},
	}, func(topic string, payload []byte) {
		log.Info().Str("topic", topic).Str("payload", string(payload)).Msg("time response")
	}, log)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	publish := func(topic, payload string, retained bool) {
		if err := client.Publish(topic, 1, retained, []byte(payload)); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("publish")
		}
	}

	ids := deviceIDs(o.count)
	for _, id := range ids {
		publish(o.topicBase+"/status/"+id, "online", true)
	}
	defer func() {
		for _, id := range ids {
			publish(o.topicBase+"/status/"+id, "offline", true)
		}
	}()
	log.Info().Int("devices", len(ids)).Dur("interval", o.interval).Msg("simulating")

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		for _, id := range ids {
			publish(o.topicBase+"/telemetry/"+id+"/temp", id+"|temp|"+reading(20, 35), false)
			publish(o.topicBase+"/telemetry/"+id+"/humidity", id+"|humidity|"+reading(30, 70), false)
			if rand.Float64() < 0.05 {
				publish(o.topicBase+"/time/request/"+id, strconv.FormatInt(time.Now().UnixMilli(), 10), false)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
