package main

import (
	"flag"
	"log"
	"os"
	"reflect"

	"github.com/robotalks/iob-boot/pkg/events"
	"github.com/robotalks/iob-boot/pkg/events/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/iob/"
)

func init() {
	if val := os.Getenv("BOOT_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}

	sub := mqtt.SubEvents(q, func(session string, typed *events.Typed, msg events.Message, err error) {
		switch {
		case typed == nil:
			log.Printf("%s: bad message: %v", session, err)
		case err != nil:
			log.Printf("%s: decode error: (type_id=%x) %v", session, typed.TypeId, err)
		default:
			log.Printf("%s: [%s] %s", session,
				reflect.Indirect(reflect.ValueOf(msg)).Type().Name(), msg.String())
		}
	})
	if sub.Token.Wait(); sub.Token.Error() != nil {
		log.Fatalln(sub.Token.Error())
	}
	<-(chan struct{})(nil)
}
