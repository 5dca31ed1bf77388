// Command scadabridge runs the DNP3 outstation to MQTT bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dernate/scadabridge"
	"github.com/dernate/scadabridge/audit"
	"github.com/dernate/scadabridge/config"
	"github.com/dernate/scadabridge/httpapi"
	"github.com/dernate/scadabridge/journal"
	"github.com/dernate/scadabridge/metrics"
	"github.com/dernate/scadabridge/mqttbus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	path := flag.String("options", envOr("SCADA_OPTIONS", config.DefaultPath), "path to the options file (YAML or JSON)")
	flag.Parse()

	opts, err := config.Load(*path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	setupLogging(opts)

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogging(opts *config.Options) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		log.Warnf("unknown log level %q, using info", opts.LogLevel)
		level = log.InfoLevel
	}
	scadabridge.LogLevel(uint32(level))

	if opts.LogFile == "" {
		log.SetOutput(os.Stdout)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    opts.LogMaxSizeMB,
		MaxBackups: opts.LogMaxBackups,
		MaxAge:     opts.LogMaxAgeDays,
	}))
}

func run(opts *config.Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	collab := scadabridge.Collaborators{Metrics: m}
	var sinks []audit.Sink

	var jrnl *journal.Journal
	if opts.JournalPath != "" {
		j, err := journal.Open(opts.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		jrnl = j
		collab.Store = j
		sinks = append(sinks, j)
	}

	if len(opts.KafkaBrokers) > 0 {
		k, err := audit.NewKafkaSink(audit.KafkaConfig{Brokers: opts.KafkaBrokers, Topic: opts.KafkaTopic, Key: scadabridge.OutstationConfig(opts).ID})
		if err != nil {
			return err
		}
		if err := k.Start(context.Background()); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			k.Stop(sctx)
		}()
		sinks = append(sinks, k)
	}
	collab.Audit = audit.Multi(sinks...)

	var opc *scadabridge.OPCSource
	if opts.OPCAddr != "" {
		opc = scadabridge.NewOPCSource(opts.OPCAddr, opts.OPCPort, opcItems(opts.OPCItems), opts.OPCItems.Setpoint, opts.OPCInterval())
		if opc.SetpointItem != "" {
			collab.Plant = opc
		}
	}

	client := mqttbus.New(mqttbus.Config{
		Host:           opts.MQTTHost,
		Port:           opts.MQTTPort,
		User:           opts.MQTTUser,
		Password:       opts.MQTTPassword,
		ClientIDPrefix: opts.MQTTBaseTopic,
		WillTopic:      scadabridge.AvailabilityTopic(opts.MQTTBaseTopic),
		WillPayload:    scadabridge.PayloadOffline,
	})
	collab.Bus = client

	b, err := scadabridge.New(opts, collab)
	if err != nil {
		return err
	}
	client.OnMessage(b.HandleMessage)
	client.OnConnect(b.OnConnect)

	if err := b.Start(ctx); err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		b.Stop(context.Background())
		return err
	}

	if opc != nil {
		go opc.Run(ctx, b)
	}
	if opts.Spoof {
		go scadabridge.NewSpoofer(opts.UpdateInterval()).Run(ctx, b)
	}

	var srv *http.Server
	if opts.HTTPAddr != "" {
		deps := httpapi.Deps{Bridge: b, Master: b.Outstation(), Metrics: m.Handler()}
		if jrnl != nil {
			deps.Journal = jrnl
		}
		srv = &http.Server{
			Addr:              opts.HTTPAddr,
			Handler:           httpapi.Handler(deps, log.StandardLogger().Writer()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Infof("http api listening on %s", opts.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http api: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		srv.Shutdown(sctx)
	}
	if err := b.Stop(sctx); err != nil {
		log.Warnf("bridge stop: %v", err)
	}
	client.Disconnect()
	return nil
}

func opcItems(items config.OPCItems) []scadabridge.OPCItem {
	var out []scadabridge.OPCItem
	for _, it := range []scadabridge.OPCItem{
		{Channel: scadabridge.ChannelPlantACPowerGenerated, ItemName: items.Generated},
		{Channel: scadabridge.ChannelGridReactivePower, ItemName: items.Reactive},
		{Channel: scadabridge.ChannelGridExportedPower, ItemName: items.Exported},
	} {
		if it.ItemName != "" {
			out = append(out, it)
		}
	}
	return out
}
