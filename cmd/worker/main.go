package main

import (
	"time"

	"polo74/file-api/config"
	"polo74/file-api/db"
	"polo74/file-api/internal/event"
	"polo74/file-api/internal/queue"
	"polo74/file-api/internal/storage"
	"polo74/file-api/internal/worker"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

func main() {
	err := config.Setup()
	if err != nil {
		panic(err)
	}

	makeLogger()

	database, err := db.New()
	if err != nil {
		panic(err)
	}

	store, err := storage.NewS3()
	if err != nil {
		panic(err)
	}

	pub := event.NewRedisPublisher()
	defer pub.Close()

	proc := &worker.Processor{
		DB:          database,
		Store:       store,
		Publisher:   pub,
		StagingRoot: viper.GetString("staging.root"),
		PublicURL:   viper.GetString("storage.public_url"),
	}

	// One task at a time. That serializes every record mutation this
	// process makes, which is the only concurrency control the state
	// machine needs. Run more worker processes to scale out.
	srv := asynq.NewServer(queue.RedisOpt(), asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			queue.QueueFileProcessing: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeFileProcess, proc.HandleProcessTask)

	zap.L().Info("Worker started. Waiting for tasks",
		zap.String("queue", queue.QueueFileProcessing))

	if err := srv.Run(mux); err != nil {
		panic(err)
	}
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}
